package sentinel

import (
	"encoding/json"
	"time"
)

// ViolationCategory classifies a single detected policy breach.
type ViolationCategory int

const (
	ViolationNone ViolationCategory = iota
	ViolationSQLInjection
	ViolationXSS
	ViolationPathTraversal
	ViolationOversized
	ViolationMaliciousFilename
)

func (v ViolationCategory) String() string {
	switch v {
	case ViolationSQLInjection:
		return "sql_injection"
	case ViolationXSS:
		return "xss"
	case ViolationPathTraversal:
		return "path_traversal"
	case ViolationOversized:
		return "oversized"
	case ViolationMaliciousFilename:
		return "malicious_filename"
	default:
		return "none"
	}
}

func (v ViolationCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *ViolationCategory) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "sql_injection":
		*v = ViolationSQLInjection
	case "xss":
		*v = ViolationXSS
	case "path_traversal":
		*v = ViolationPathTraversal
	case "oversized":
		*v = ViolationOversized
	case "malicious_filename":
		*v = ViolationMaliciousFilename
	default:
		*v = ViolationNone
	}
	return nil
}

// Severity ranks audit events. Ordering matters: trim passes drop the
// lowest severities first.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "low"
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "critical":
		*s = SeverityCritical
	case "high":
		*s = SeverityHigh
	case "medium":
		*s = SeverityMedium
	default:
		*s = SeverityLow
	}
	return nil
}

// Tier is the caller's authentication tier, used to scale rate limits.
type Tier int

const (
	TierAnonymous Tier = iota
	TierAuthenticated
	TierPremium
	TierAdmin
)

func (t Tier) String() string {
	switch t {
	case TierAuthenticated:
		return "authenticated"
	case TierPremium:
		return "premium"
	case TierAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// RouteClass groups endpoints that share a base rate-limit policy.
type RouteClass string

const (
	RouteGeneral      RouteClass = "general"
	RouteAuth         RouteClass = "auth"
	RouteUpload       RouteClass = "upload"
	RouteMessaging    RouteClass = "messaging"
	RouteJobPosting   RouteClass = "job-posting"
	RouteApplications RouteClass = "applications"
)

// EventType names an audit-worthy occurrence. The sink maps each type to a
// fixed severity.
type EventType string

const (
	EventSQLInjectionAttempt EventType = "sql_injection_attempt"
	EventXSSAttempt          EventType = "xss_attempt"
	EventPathTraversal       EventType = "path_traversal_attempt"
	EventOversizedPayload    EventType = "oversized_payload"
	EventMaliciousFilename   EventType = "malicious_filename"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventIPBlocked           EventType = "ip_blocked"
	EventIPUnblocked         EventType = "ip_unblocked"
	EventScannerFault        EventType = "scanner_fault"
	EventWebhookSigInvalid   EventType = "webhook_signature_invalid"
	EventAdminOverride       EventType = "admin_override"
)

// ViolationEvent is one detected pattern match. Created once, never mutated.
type ViolationEvent struct {
	Category  ViolationCategory `json:"category"`
	Severity  int               `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
}

// ReputationRecord tracks accumulated violations for one identity. Only the
// ReputationStore mutates it; snapshots handed out are copies.
type ReputationRecord struct {
	Identity   string           `json:"identity"`
	Score      int              `json:"score"`
	Violations []ViolationEvent `json:"violations"`
	FirstSeen  time.Time        `json:"first_seen"`
	LastSeen   time.Time        `json:"last_seen"`
}

// RiskTier buckets a reputation score for reporting. It never feeds the
// admission decision directly.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// BlockEntry is an active block on an identity.
type BlockEntry struct {
	Identity  string    `json:"identity"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SecurityEvent is one append-only audit record.
type SecurityEvent struct {
	UUID      string    `json:"uuid"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Identity  string    `json:"identity,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReasonCode is the machine-readable deny reason returned to callers.
type ReasonCode string

const (
	ReasonMaliciousInput ReasonCode = "malicious_input"
	ReasonBlocked        ReasonCode = "blocked"
	ReasonRateLimited    ReasonCode = "rate_limited"
)

// Decision is the structured outcome of an admission check. Every path
// through the engine returns one; nothing on the request path panics or
// returns an error to the caller.
type Decision struct {
	Allowed    bool              `json:"allowed"`
	StatusCode int               `json:"status_code,omitempty"`
	Reason     ReasonCode        `json:"reason,omitempty"`
	Category   ViolationCategory `json:"category,omitempty"`
	RetryAfter time.Duration     `json:"retry_after,omitempty"`
}

// Allow is the zero-cost admitted decision.
func Allow() Decision { return Decision{Allowed: true} }
