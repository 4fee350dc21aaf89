package sentinel

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jobvine/sentinel/internal/logger"
)

const (
	// maxAuditEvents caps the in-memory event buffer; an overflow trims
	// down to half.
	maxAuditEvents = 1000
)

// severityByType is the fixed classification applied to every recorded
// event type. Keeping this a closed table means a new event type without a
// mapping is caught in review, not at runtime.
var severityByType = map[EventType]Severity{
	EventSQLInjectionAttempt: SeverityCritical,
	EventXSSAttempt:          SeverityHigh,
	EventPathTraversal:       SeverityHigh,
	EventOversizedPayload:    SeverityLow,
	EventMaliciousFilename:   SeverityHigh,
	EventRateLimitExceeded:   SeverityLow,
	EventIPBlocked:           SeverityCritical,
	EventIPUnblocked:         SeverityLow,
	EventScannerFault:        SeverityLow,
	EventWebhookSigInvalid:   SeverityHigh,
	EventAdminOverride:       SeverityMedium,
}

// SeverityFor returns the classification for an event type.
func SeverityFor(t EventType) Severity {
	if s, ok := severityByType[t]; ok {
		return s
	}
	return SeverityLow
}

// AlertFunc dispatches a critical event to an external channel. It runs in
// its own goroutine; errors are logged and swallowed, never surfaced to the
// request path.
type AlertFunc func(SecurityEvent) error

// ArchiveFunc hands a copy of every event to an off-path archive. It must
// not block; the canonical implementation is a buffered-channel enqueue.
type ArchiveFunc func(SecurityEvent)

// AuditSink is the bounded append-only event log. Critical events fire a
// best-effort alert and survive trim passes.
type AuditSink struct {
	mu     sync.Mutex
	events []SecurityEvent

	totalRecorded    uint64
	criticalRecorded uint64

	clock   Clock
	alert   AlertFunc
	archive ArchiveFunc
}

// NewAuditSink builds a sink. alert and archive may be nil.
func NewAuditSink(clock Clock, alert AlertFunc, archive ArchiveFunc) *AuditSink {
	return &AuditSink{clock: clock, alert: alert, archive: archive}
}

// Record classifies and appends one event. Critical events additionally
// dispatch an alert fire-and-forget.
func (s *AuditSink) Record(t EventType, identity, details string) SecurityEvent {
	evt := SecurityEvent{
		UUID:      uuid.NewString(),
		Type:      t,
		Severity:  SeverityFor(t),
		Identity:  identity,
		Details:   details,
		Timestamp: s.clock.Now(),
	}

	s.mu.Lock()
	s.events = append(s.events, evt)
	s.totalRecorded++
	if evt.Severity == SeverityCritical {
		s.criticalRecorded++
	}
	if len(s.events) > maxAuditEvents {
		s.events = trimEvents(s.events, maxAuditEvents/2)
	}
	s.mu.Unlock()

	if s.archive != nil {
		s.archive(evt)
	}
	if evt.Severity == SeverityCritical && s.alert != nil {
		go s.dispatchAlert(evt)
	}
	return evt
}

func (s *AuditSink) dispatchAlert(evt SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{"event": string(evt.Type)}).Errorf("alert dispatch panic: %v", r)
		}
	}()
	if err := s.alert(evt); err != nil {
		logger.WithFields(map[string]interface{}{
			"event":    string(evt.Type),
			"identity": evt.Identity,
		}).Warnf("alert dispatch failed: %v", err)
	}
}

// trimEvents keeps at most target entries: every critical entry that fits,
// newest first, then the newest non-critical entries fill the remainder.
// Chronological order is preserved in the result.
func trimEvents(events []SecurityEvent, target int) []SecurityEvent {
	if len(events) <= target {
		return events
	}
	kept := make([]SecurityEvent, 0, target)
	// Walk newest to oldest, admitting critical unconditionally and
	// non-critical while room remains after reserving critical slots.
	critical := 0
	for _, e := range events {
		if e.Severity == SeverityCritical {
			critical++
		}
	}
	nonCriticalBudget := target - critical
	if nonCriticalBudget < 0 {
		nonCriticalBudget = 0
	}
	for i := len(events) - 1; i >= 0 && len(kept) < target; i-- {
		e := events[i]
		if e.Severity == SeverityCritical {
			kept = append(kept, e)
		} else if nonCriticalBudget > 0 {
			kept = append(kept, e)
			nonCriticalBudget--
		}
	}
	// Reverse back to chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// Recent returns the newest n events, oldest first.
func (s *AuditSink) Recent(n int) []SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.events) {
		n = len(s.events)
	}
	out := make([]SecurityEvent, n)
	copy(out, s.events[len(s.events)-n:])
	return out
}

// Counts reports the monotonic total and critical event counts. Trimming
// the buffer never decrements these.
func (s *AuditSink) Counts() (total, critical uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRecorded, s.criticalRecorded
}

// Len reports the current buffer size.
func (s *AuditSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
