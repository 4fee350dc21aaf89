package sentinel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditSink_SeverityClassification(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor(EventSQLInjectionAttempt))
	assert.Equal(t, SeverityHigh, SeverityFor(EventXSSAttempt))
	assert.Equal(t, SeverityLow, SeverityFor(EventRateLimitExceeded))
	assert.Equal(t, SeverityCritical, SeverityFor(EventIPBlocked))
	assert.Equal(t, SeverityLow, SeverityFor(EventScannerFault))
	assert.Equal(t, SeverityLow, SeverityFor(EventType("unknown_event")))
}

func TestAuditSink_RecordStampsEvent(t *testing.T) {
	clock := testClock()
	sink := NewAuditSink(clock, nil, nil)

	evt := sink.Record(EventXSSAttempt, "10.3.3.1", "field=bio")
	assert.NotEmpty(t, evt.UUID)
	assert.Equal(t, clock.Now(), evt.Timestamp)
	assert.Equal(t, SeverityHigh, evt.Severity)
	assert.Equal(t, 1, sink.Len())
}

func TestAuditSink_OverflowTrimsToHalf(t *testing.T) {
	sink := NewAuditSink(testClock(), nil, nil)

	for i := 0; i <= maxAuditEvents; i++ {
		sink.Record(EventRateLimitExceeded, fmt.Sprintf("10.0.%d.%d", i/255, i%255), "")
	}
	assert.Equal(t, maxAuditEvents/2, sink.Len())

	total, _ := sink.Counts()
	assert.Equal(t, uint64(maxAuditEvents+1), total)
}

func TestAuditSink_TrimPreservesCritical(t *testing.T) {
	sink := NewAuditSink(testClock(), nil, nil)

	// Criticals land early, then a flood of low-severity noise forces a
	// trim. Every critical must survive.
	for i := 0; i < 40; i++ {
		sink.Record(EventSQLInjectionAttempt, "10.3.3.2", "")
	}
	for i := 0; i <= maxAuditEvents; i++ {
		sink.Record(EventRateLimitExceeded, "10.3.3.3", "")
	}

	critical := 0
	for _, evt := range sink.Recent(0) {
		if evt.Severity == SeverityCritical {
			critical++
		}
	}
	assert.Equal(t, 40, critical)
	assert.Equal(t, maxAuditEvents/2, sink.Len())
}

func TestAuditSink_RecentOrderAndBound(t *testing.T) {
	clock := testClock()
	sink := NewAuditSink(clock, nil, nil)

	for i := 0; i < 10; i++ {
		sink.Record(EventRateLimitExceeded, fmt.Sprintf("id-%d", i), "")
		clock.Advance(time.Second)
	}

	recent := sink.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "id-7", recent[0].Identity)
	assert.Equal(t, "id-9", recent[2].Identity)
}

func TestAuditSink_CriticalDispatchesAlert(t *testing.T) {
	got := make(chan SecurityEvent, 1)
	sink := NewAuditSink(testClock(), func(evt SecurityEvent) error {
		got <- evt
		return nil
	}, nil)

	sink.Record(EventRateLimitExceeded, "10.3.3.4", "")
	select {
	case <-got:
		t.Fatal("non-critical event must not alert")
	case <-time.After(50 * time.Millisecond):
	}

	sink.Record(EventIPBlocked, "10.3.3.4", "threshold crossed")
	select {
	case evt := <-got:
		assert.Equal(t, EventIPBlocked, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("expected alert dispatch for critical event")
	}
}

func TestAuditSink_AlertFailureIsSwallowed(t *testing.T) {
	called := make(chan struct{}, 1)
	sink := NewAuditSink(testClock(), func(SecurityEvent) error {
		called <- struct{}{}
		return errors.New("notifier unreachable")
	}, nil)

	// Must not panic or propagate; the event is still recorded.
	evt := sink.Record(EventSQLInjectionAttempt, "10.3.3.5", "")
	assert.Equal(t, SeverityCritical, evt.Severity)
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("alert func never invoked")
	}
	assert.Equal(t, 1, sink.Len())
}

func TestAuditSink_ArchiveReceivesEveryEvent(t *testing.T) {
	var archived []SecurityEvent
	sink := NewAuditSink(testClock(), nil, func(evt SecurityEvent) {
		archived = append(archived, evt)
	})

	sink.Record(EventXSSAttempt, "a", "")
	sink.Record(EventRateLimitExceeded, "b", "")
	assert.Len(t, archived, 2)
}
