package sentinel

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	reputationShards = 32

	// maxViolationHistory bounds the per-record violation list; the
	// cumulative score still reflects every violation.
	maxViolationHistory = 50

	// staleAfter is how long an identity may stay idle before the sweep
	// reclaims its record.
	staleAfter = 24 * time.Hour
)

// Risk tier cutoffs, reporting only.
const (
	riskMediumAt = 15
	riskHighAt   = 30
)

type reputationShard struct {
	mu      sync.Mutex
	records map[string]*ReputationRecord
}

// ReputationStore owns all reputation records, sharded by identity hash so
// concurrent request flows contend per shard instead of on one global lock.
type ReputationStore struct {
	shards    [reputationShards]*reputationShard
	whitelist *Whitelist
	clock     Clock
}

// NewReputationStore builds an empty store. Whitelisted identities are never
// scored.
func NewReputationStore(whitelist *Whitelist, clock Clock) *ReputationStore {
	s := &ReputationStore{whitelist: whitelist, clock: clock}
	for i := range s.shards {
		s.shards[i] = &reputationShard{records: make(map[string]*ReputationRecord)}
	}
	return s
}

func (s *ReputationStore) shardFor(identity string) *reputationShard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return s.shards[h.Sum32()%reputationShards]
}

// AddViolation records one violation and returns the updated cumulative
// score together with the record's first/last seen timestamps, so the
// caller can test the block threshold without a second lookup. Whitelisted
// identities are a no-op and report score 0.
func (s *ReputationStore) AddViolation(identity string, category ViolationCategory, severity int) (score int, firstSeen, lastSeen time.Time) {
	if s.whitelist.Contains(identity) {
		return 0, time.Time{}, time.Time{}
	}
	if severity < 0 {
		severity = 0
	}
	now := s.clock.Now()

	shard := s.shardFor(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[identity]
	if !ok {
		rec = &ReputationRecord{Identity: identity, FirstSeen: now}
		shard.records[identity] = rec
	}
	rec.Violations = append(rec.Violations, ViolationEvent{Category: category, Severity: severity, Timestamp: now})
	if len(rec.Violations) > maxViolationHistory {
		rec.Violations = rec.Violations[len(rec.Violations)-maxViolationHistory:]
	}
	rec.Score += severity
	rec.LastSeen = now
	return rec.Score, rec.FirstSeen, rec.LastSeen
}

// Reputation returns the current score and risk tier for reporting. The
// second return is false when the identity is untracked.
func (s *ReputationStore) Reputation(identity string) (int, RiskTier, bool) {
	shard := s.shardFor(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[identity]
	if !ok {
		return 0, RiskLow, false
	}
	return rec.Score, riskTierFor(rec.Score), true
}

func riskTierFor(score int) RiskTier {
	switch {
	case score >= riskHighAt:
		return RiskHigh
	case score >= riskMediumAt:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Remove drops the record for an identity, returning it to the untracked
// state. Used on block expiry (full reset) and admin override.
func (s *ReputationStore) Remove(identity string) {
	shard := s.shardFor(identity)
	shard.mu.Lock()
	delete(shard.records, identity)
	shard.mu.Unlock()
}

// TrackedCount reports how many identities currently hold a record.
func (s *ReputationStore) TrackedCount() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.records)
		shard.mu.Unlock()
	}
	return total
}

// Sweep removes records idle for longer than the stale cutoff and reports
// how many were reclaimed. Safe to call repeatedly; a sweep over a clean
// store is a no-op.
func (s *ReputationStore) Sweep() int {
	cutoff := s.clock.Now().Add(-staleAfter)
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for id, rec := range shard.records {
			if rec.LastSeen.Before(cutoff) {
				delete(shard.records, id)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
