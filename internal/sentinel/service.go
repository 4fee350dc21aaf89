package sentinel

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jobvine/sentinel/internal/logger"
	"github.com/jobvine/sentinel/internal/metrics"
)

// Field is one scannable string-valued input, in request order.
type Field struct {
	Name  string
	Value string
}

// FileMeta describes an uploaded file; only metadata is scanned, never
// content.
type FileMeta struct {
	Filename string
	MimeType string
	Size     int64
}

// CheckInput is everything the engine needs to admit or deny one request.
type CheckInput struct {
	Identity string
	Tier     Tier
	Route    RouteClass
	Fields   []Field
	Files    []FileMeta
}

// ArchiveStore aggregates archived events for period reports. Implemented
// by the sqlite archive service; nil when archiving is disabled.
type ArchiveStore interface {
	CountByType(since, until time.Time) (map[EventType]int64, error)
}

// Options configures a Service.
type Options struct {
	Whitelist    []string
	RatePolicies map[RouteClass]RatePolicy
	Clock        Clock
	Alert        AlertFunc
	Archive      ArchiveFunc
	Reports      ArchiveStore
}

// Service is the admission-control engine: it owns the scanner, the
// reputation store, the remediation engine, the rate gate and the audit
// sink, and wires them into a single synchronous Check. Construct one at
// startup and pass it explicitly; there is no package-level state.
type Service struct {
	scanner     *Scanner
	store       *ReputationStore
	remediation *AutoRemediation
	gate        *AdmissionGate
	sink        *AuditSink
	whitelist   *Whitelist
	clock       Clock
	reports     ArchiveStore
	cron        *cron.Cron
}

// NewService wires the engine together.
func NewService(opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	wl := NewWhitelist(opts.Whitelist)
	sink := NewAuditSink(clock, opts.Alert, opts.Archive)
	store := NewReputationStore(wl, clock)

	s := &Service{
		scanner:   NewScanner(),
		store:     store,
		gate:      NewAdmissionGate(opts.RatePolicies, clock),
		sink:      sink,
		whitelist: wl,
		clock:     clock,
		reports:   opts.Reports,
	}
	s.remediation = NewAutoRemediation(store, wl, clock, func(evt EventType, identity, details string) {
		sink.Record(evt, identity, details)
	})
	return s
}

// Check runs the full admission pipeline for one request. It is synchronous
// and never performs blocking I/O; every outcome is a structured Decision.
func (s *Service) Check(in CheckInput) Decision {
	metrics.IncEvaluated()

	if s.whitelist.Contains(in.Identity) {
		return Allow()
	}

	// Block status strictly before the rate counter: a blocked identity is
	// denied without consuming window capacity.
	if entry, blocked := s.remediation.IsBlocked(in.Identity); blocked {
		metrics.IncDenied(string(ReasonBlocked))
		retry := entry.ExpiresAt.Sub(s.clock.Now())
		return Decision{
			Allowed:    false,
			StatusCode: http.StatusForbidden,
			Reason:     ReasonBlocked,
			RetryAfter: retry,
		}
	}

	if res := s.gate.Allow(in.Identity, in.Tier, in.Route); !res.Allowed {
		s.sink.Record(EventRateLimitExceeded, in.Identity,
			fmt.Sprintf("route=%s limit=%d", in.Route, res.Limit))
		metrics.IncDenied(string(ReasonRateLimited))
		return Decision{
			Allowed:    false,
			StatusCode: http.StatusTooManyRequests,
			Reason:     ReasonRateLimited,
			RetryAfter: res.RetryAfter,
		}
	}

	for _, f := range in.Fields {
		if d, denied := s.applyScan(in.Identity, f.Name, s.scanner.Scan(f.Value)); denied {
			return d
		}
	}
	for _, file := range in.Files {
		if d, denied := s.applyScan(in.Identity, "file:"+file.Filename, s.scanner.ScanFilename(file.Filename)); denied {
			return d
		}
		if d, denied := s.applyScan(in.Identity, "file:"+file.Filename, s.scanner.Scan(file.MimeType)); denied {
			return d
		}
		if d, denied := s.applyScan(in.Identity, "file:"+file.Filename, s.scanner.ScanUploadSize(file.Size)); denied {
			return d
		}
	}
	return Allow()
}

// applyScan turns one scan result into the corresponding side effects. A
// scanner fault fails open: recorded, never denied. A match scores the
// identity, lets remediation evaluate the threshold, and always denies the
// triggering request even when the score stays below the block threshold.
func (s *Service) applyScan(identity, field string, res ScanResult) (Decision, bool) {
	if res.Fault {
		s.sink.Record(EventScannerFault, identity,
			fmt.Sprintf("field=%s cause=%s", field, res.FaultCause))
		return Decision{}, false
	}
	if !res.Matched {
		return Decision{}, false
	}

	score, firstSeen, lastSeen := s.store.AddViolation(identity, res.Category, res.Severity)
	s.remediation.Evaluate(identity, score, firstSeen, lastSeen)
	s.sink.Record(EventTypeFor(res.Category), identity,
		fmt.Sprintf("field=%s severity=%d score=%d", field, res.Severity, score))
	metrics.IncViolation(res.Category.String())
	metrics.IncDenied(string(ReasonMaliciousInput))

	return Decision{
		Allowed:    false,
		StatusCode: http.StatusBadRequest,
		Reason:     ReasonMaliciousInput,
		Category:   res.Category,
	}, true
}

// VerifyWebhook validates a route-scoped webhook signature. Failures are
// audited but never scored; signature problems are a sender issue, not a
// reputation signal.
func (s *Service) VerifyWebhook(payload []byte, signature, secret, source string) bool {
	if VerifySignature(payload, signature, secret) {
		return true
	}
	s.sink.Record(EventWebhookSigInvalid, "", "source="+source)
	return false
}

// Unblock lifts a block immediately and resets the identity's reputation.
// Returns false when the identity was not blocked.
func (s *Service) Unblock(identity, actor string) bool {
	if !s.remediation.Unblock(identity) {
		return false
	}
	s.sink.Record(EventAdminOverride, identity, "unblocked by "+actor)
	return true
}

// Reputation exposes the reporting view of an identity's score.
func (s *Service) Reputation(identity string) (int, RiskTier, bool) {
	return s.store.Reputation(identity)
}

// Blocked lists the currently blocked identities.
func (s *Service) Blocked() []BlockEntry { return s.remediation.BlockedIdentities() }

// Whitelisted reports whether an identity is exempt.
func (s *Service) Whitelisted(identity string) bool { return s.whitelist.Contains(identity) }

// WhitelistIdentities lists the configured exemptions for the admin surface.
func (s *Service) WhitelistIdentities() []string {
	ids := s.whitelist.Identities()
	sort.Strings(ids)
	return ids
}

// SecurityStatus is the read-only snapshot served to the admin surface.
type SecurityStatus struct {
	BlockedIdentities []BlockEntry    `json:"blocked_identities"`
	TrackedThreats    int             `json:"tracked_threats"`
	RecentEvents      []SecurityEvent `json:"recent_events"`
	TotalEvents       uint64          `json:"total_events"`
	CriticalEvents    uint64          `json:"critical_events"`
}

// Status captures the current engine state. recentN bounds the event list.
func (s *Service) Status(recentN int) SecurityStatus {
	total, critical := s.sink.Counts()
	blocked := s.remediation.BlockedIdentities()
	metrics.SetBlocked(len(blocked))
	return SecurityStatus{
		BlockedIdentities: blocked,
		TrackedThreats:    s.store.TrackedCount(),
		RecentEvents:      s.sink.Recent(recentN),
		TotalEvents:       total,
		CriticalEvents:    critical,
	}
}

// AuditReport aggregates events over a period, with derived textual
// recommendations. Produces no side effects.
type AuditReport struct {
	PeriodStart       time.Time         `json:"period_start"`
	PeriodEnd         time.Time         `json:"period_end"`
	EventCounts       map[EventType]int `json:"event_counts"`
	TotalEvents       int               `json:"total_events"`
	BlockedIdentities []BlockEntry      `json:"blocked_identities"`
	Recommendations   []string          `json:"recommendations"`
}

// GenerateAudit builds the report for the trailing period. The sqlite
// archive is preferred; without one the in-memory ring is aggregated, which
// bounds the report to events still in the buffer.
func (s *Service) GenerateAudit(period time.Duration) AuditReport {
	until := s.clock.Now()
	since := until.Add(-period)

	counts := make(map[EventType]int)
	if s.reports != nil {
		byType, err := s.reports.CountByType(since, until)
		if err != nil {
			logger.WithComponent("audit-report").Warnf("archive aggregation failed, using in-memory events: %v", err)
			counts = s.countInMemory(since, until)
		} else {
			for t, n := range byType {
				counts[t] = int(n)
			}
		}
	} else {
		counts = s.countInMemory(since, until)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	report := AuditReport{
		PeriodStart:       since,
		PeriodEnd:         until,
		EventCounts:       counts,
		TotalEvents:       total,
		BlockedIdentities: s.remediation.BlockedIdentities(),
		Recommendations:   []string{},
	}
	report.Recommendations = recommend(report)
	return report
}

func (s *Service) countInMemory(since, until time.Time) map[EventType]int {
	counts := make(map[EventType]int)
	for _, evt := range s.sink.Recent(0) {
		if evt.Timestamp.Before(since) || evt.Timestamp.After(until) {
			continue
		}
		counts[evt.Type]++
	}
	return counts
}

// recommend derives operator guidance from what the period shows. Empty
// input yields an empty list, so a quiet period reports nothing.
func recommend(r AuditReport) []string {
	recs := []string{}
	if len(r.BlockedIdentities) > 10 {
		recs = append(recs, "high volume of blocked IPs: consider additional network-level protection")
	}
	if r.EventCounts[EventSQLInjectionAttempt] > 0 {
		recs = append(recs, "SQL injection attempts detected: review input validation on exposed endpoints")
	}
	if r.EventCounts[EventRateLimitExceeded] > 100 {
		recs = append(recs, "sustained rate-limit pressure: review base policies or add caching upstream")
	}
	if r.EventCounts[EventScannerFault] > 0 {
		recs = append(recs, "scanner faults recorded: inspect logs, faults fail open")
	}
	return recs
}

// RunSweep performs one pass of all periodic maintenance: expired blocks,
// stale reputation records, dead rate windows. Idempotent; tests drive it
// directly with a fake clock.
func (s *Service) RunSweep() {
	expired := s.remediation.Sweep()
	stale := s.store.Sweep()
	windows := s.gate.Sweep()
	if expired+stale+windows > 0 {
		logger.WithComponent("sweep").WithFields(map[string]interface{}{
			"expired_blocks": expired,
			"stale_records":  stale,
			"rate_windows":   windows,
		}).Debug("maintenance sweep")
	}
}

// StartSweeps schedules the periodic maintenance sweep. Call Stop to halt.
func (s *Service) StartSweeps(every time.Duration) error {
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", every), s.RunSweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the background sweep scheduler and waits for any sweep still
// running, so callers can tear down the archive queue safely afterwards.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}
