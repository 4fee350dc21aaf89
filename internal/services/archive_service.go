package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jobvine/sentinel/internal/logger"
	"github.com/jobvine/sentinel/internal/models"
	"github.com/jobvine/sentinel/internal/sentinel"
)

const archiveQueueSize = 512

// ArchiveService persists audit events to sqlite off the request path. The
// sink enqueues; a single drain goroutine writes. A full queue drops the
// event rather than block admission (the in-memory sink stays authoritative
// for recent history either way).
type ArchiveService struct {
	db    *gorm.DB
	queue chan sentinel.SecurityEvent
	done  chan struct{}
}

// NewArchiveService migrates the archive tables and starts the drain loop.
func NewArchiveService(db *gorm.DB) (*ArchiveService, error) {
	if err := db.AutoMigrate(&models.ArchivedEvent{}, &models.BlockRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive tables: %w", err)
	}
	s := &ArchiveService{
		db:    db,
		queue: make(chan sentinel.SecurityEvent, archiveQueueSize),
		done:  make(chan struct{}),
	}
	go s.drain()
	return s, nil
}

// Enqueue hands an event to the drain loop without blocking.
func (s *ArchiveService) Enqueue(evt sentinel.SecurityEvent) {
	select {
	case s.queue <- evt:
	default:
		logger.WithComponent("archive").WithField("event", string(evt.Type)).Warn("archive queue full, event dropped")
	}
}

func (s *ArchiveService) drain() {
	defer close(s.done)
	for evt := range s.queue {
		s.persist(evt)
	}
}

func (s *ArchiveService) persist(evt sentinel.SecurityEvent) {
	rec := models.ArchivedEvent{
		UUID:       evt.UUID,
		Type:       string(evt.Type),
		Severity:   evt.Severity.String(),
		Identity:   evt.Identity,
		Details:    evt.Details,
		OccurredAt: evt.Timestamp,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		logger.WithComponent("archive").Warnf("persist event: %v", err)
		return
	}

	switch evt.Type {
	case sentinel.EventIPBlocked:
		block := models.BlockRecord{
			UUID:      uuid.NewString(),
			Identity:  evt.Identity,
			Reason:    evt.Details,
			BlockedAt: evt.Timestamp,
		}
		if err := s.db.Create(&block).Error; err != nil {
			logger.WithComponent("archive").Warnf("persist block record: %v", err)
		}
	case sentinel.EventIPUnblocked, sentinel.EventAdminOverride:
		lifted := evt.Timestamp
		err := s.db.Model(&models.BlockRecord{}).
			Where("identity = ? AND lifted_at IS NULL", evt.Identity).
			Update("lifted_at", &lifted).Error
		if err != nil {
			logger.WithComponent("archive").Warnf("close block record: %v", err)
		}
	}
}

// Close stops accepting events and waits for the queue to flush.
func (s *ArchiveService) Close() {
	close(s.queue)
	<-s.done
}

// CountByType aggregates archived events per type over a period.
func (s *ArchiveService) CountByType(since, until time.Time) (map[sentinel.EventType]int64, error) {
	var rows []struct {
		Type  string
		Count int64
	}
	err := s.db.Model(&models.ArchivedEvent{}).
		Select("type, count(*) as count").
		Where("occurred_at >= ? AND occurred_at <= ?", since, until).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate archived events: %w", err)
	}
	out := make(map[sentinel.EventType]int64, len(rows))
	for _, row := range rows {
		out[sentinel.EventType(row.Type)] = row.Count
	}
	return out, nil
}

// RecentEvents returns the newest archived events, newest first.
func (s *ArchiveService) RecentEvents(limit int) ([]models.ArchivedEvent, error) {
	var res []models.ArchivedEvent
	q := s.db.Order("occurred_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// BlockHistory returns past block decisions, newest first.
func (s *ArchiveService) BlockHistory(limit int) ([]models.BlockRecord, error) {
	var res []models.BlockRecord
	q := s.db.Order("blocked_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}
