package sentinel

// Whitelist is the fixed, process-lifetime set of identities exempt from
// scanning, scoring and blocking. It is immutable after construction, so
// lookups need no locking.
type Whitelist struct {
	entries map[string]struct{}
}

// NewWhitelist builds a whitelist from the configured identities.
func NewWhitelist(identities []string) *Whitelist {
	w := &Whitelist{entries: make(map[string]struct{}, len(identities))}
	for _, id := range identities {
		if id != "" {
			w.entries[id] = struct{}{}
		}
	}
	return w
}

// Contains reports whether the identity is exempt. A composite identity
// ("ip|user") is exempt when either part is listed.
func (w *Whitelist) Contains(identity string) bool {
	if w == nil {
		return false
	}
	if _, ok := w.entries[identity]; ok {
		return true
	}
	for i := 0; i < len(identity); i++ {
		if identity[i] == '|' {
			if _, ok := w.entries[identity[:i]]; ok {
				return true
			}
			_, ok := w.entries[identity[i+1:]]
			return ok
		}
	}
	return false
}

// Identities returns the listed identities for the admin surface.
func (w *Whitelist) Identities() []string {
	if w == nil {
		return nil
	}
	out := make([]string, 0, len(w.entries))
	for id := range w.entries {
		out = append(out, id)
	}
	return out
}
