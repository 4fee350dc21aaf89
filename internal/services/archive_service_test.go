package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jobvine/sentinel/internal/sentinel"
)

func setupArchiveTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func testEvent(t sentinel.EventType, identity string, at time.Time) sentinel.SecurityEvent {
	return sentinel.SecurityEvent{
		UUID:      identity + "-" + string(t) + "-" + at.Format(time.RFC3339Nano),
		Type:      t,
		Severity:  sentinel.SeverityFor(t),
		Identity:  identity,
		Details:   "test",
		Timestamp: at,
	}
}

func TestArchiveService_PersistAndCount(t *testing.T) {
	svc, err := NewArchiveService(setupArchiveTestDB(t))
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.Enqueue(testEvent(sentinel.EventSQLInjectionAttempt, "10.5.5.1", base))
	svc.Enqueue(testEvent(sentinel.EventSQLInjectionAttempt, "10.5.5.2", base.Add(time.Minute)))
	svc.Enqueue(testEvent(sentinel.EventRateLimitExceeded, "10.5.5.3", base.Add(2*time.Minute)))
	// Outside the queried period.
	svc.Enqueue(testEvent(sentinel.EventXSSAttempt, "10.5.5.4", base.Add(-2*time.Hour)))
	svc.Close()

	counts, err := svc.CountByType(base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[sentinel.EventSQLInjectionAttempt])
	assert.Equal(t, int64(1), counts[sentinel.EventRateLimitExceeded])
	_, present := counts[sentinel.EventXSSAttempt]
	assert.False(t, present)

	events, err := svc.RecentEvents(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, string(sentinel.EventRateLimitExceeded), events[0].Type)
}

func TestArchiveService_EmptyPeriod(t *testing.T) {
	svc, err := NewArchiveService(setupArchiveTestDB(t))
	require.NoError(t, err)
	svc.Close()

	counts, err := svc.CountByType(time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestArchiveService_BlockLifecycleRecorded(t *testing.T) {
	svc, err := NewArchiveService(setupArchiveTestDB(t))
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.Enqueue(testEvent(sentinel.EventIPBlocked, "10.5.5.9", base))
	svc.Enqueue(testEvent(sentinel.EventIPUnblocked, "10.5.5.9", base.Add(time.Hour)))
	svc.Close()

	history, err := svc.BlockHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "10.5.5.9", history[0].Identity)
	require.NotNil(t, history[0].LiftedAt)
	assert.Equal(t, base.Add(time.Hour).Unix(), history[0].LiftedAt.Unix())
}
