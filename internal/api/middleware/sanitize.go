package middleware

import (
	"net/http"
	"strings"

	"github.com/jobvine/sentinel/internal/util"
)

// sensitiveHeaders are redacted wholesale in log output; everything the
// engine inspects can carry credentials or signatures.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-auth-token":        {},
	"x-signature":         {},
	"x-forwarded-for":     {},
}

// SanitizeHeaders returns a map of header keys to redacted/sanitized values
// for safe logging.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		sanitized := make([]string, 0, len(vals))
		for _, v := range vals {
			sanitized = append(sanitized, util.SanitizeForLog(v))
		}
		out[k] = sanitized
	}
	return out
}

// SanitizePath prepares a request path for safe logging. It does not
// include query parameters.
func SanitizePath(p string) string {
	if i := strings.Index(p, "?"); i != -1 {
		p = p[:i]
	}
	return util.SanitizeForLog(p)
}
