package sentinel

import (
	"container/heap"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const (
	// BlockThreshold is the cumulative score at which an identity is blocked.
	BlockThreshold = 50
	// ScoringWindow is the span (first to last violation) within which the
	// accumulated score counts toward the threshold.
	ScoringWindow = 15 * time.Minute
	// BlockDuration is how long a block lasts before auto-unblock.
	BlockDuration = time.Hour

	blockShards = 32
)

// expiryItem is one pending auto-unblock, ordered by expiry. seq ties the
// item to a specific block generation: re-blocking bumps the generation so
// a stale item popped later is discarded instead of unblocking an identity
// that was re-blocked in the meantime.
type expiryItem struct {
	identity  string
	expiresAt time.Time
	seq       uint64
}

type expiryHeap []expiryItem

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(expiryItem)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type blockState struct {
	entry BlockEntry
	seq   uint64
}

type blockShard struct {
	mu     sync.Mutex
	blocks map[string]*blockState
}

// AutoRemediation owns the block table and the delay queue that drives
// auto-unblock. The table is sharded by identity hash so the per-request
// IsBlocked check contends per shard; only the heap sits under a single
// lock, and it is touched on block and sweep, never on admission. Expiry is
// drained by the periodic sweep rather than by per-block timers, which
// keeps cancellation deterministic and testable with a fake clock.
type AutoRemediation struct {
	shards [blockShards]*blockShard

	heapMu  sync.Mutex
	pending expiryHeap
	nextSeq uint64

	store     *ReputationStore
	whitelist *Whitelist
	clock     Clock
	notify    func(evt EventType, identity, details string)
}

// NewAutoRemediation wires the remediation engine. notify receives block
// lifecycle events and must not block.
func NewAutoRemediation(store *ReputationStore, whitelist *Whitelist, clock Clock, notify func(EventType, string, string)) *AutoRemediation {
	if notify == nil {
		notify = func(EventType, string, string) {}
	}
	a := &AutoRemediation{
		store:     store,
		whitelist: whitelist,
		clock:     clock,
		notify:    notify,
	}
	for i := range a.shards {
		a.shards[i] = &blockShard{blocks: make(map[string]*blockState)}
	}
	return a
}

func (a *AutoRemediation) shardFor(identity string) *blockShard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return a.shards[h.Sum32()%blockShards]
}

// Evaluate consumes an AddViolation result and blocks the identity when the
// threshold is crossed inside the scoring window. Returns true when the
// identity is blocked (newly or refreshed) by this evaluation.
func (a *AutoRemediation) Evaluate(identity string, score int, firstSeen, lastSeen time.Time) bool {
	if score < BlockThreshold {
		return false
	}
	if lastSeen.Sub(firstSeen) > ScoringWindow {
		return false
	}
	a.Block(identity, fmt.Sprintf("score %d reached block threshold", score))
	return true
}

// Block creates or refreshes a block on the identity for the standard
// duration. A refresh replaces the pending unblock: the old expiry item's
// generation is invalidated, never raced against. The entry and its
// generation are written together under the shard lock, so the sweep's
// seq comparison always sees a consistent pair.
func (a *AutoRemediation) Block(identity, reason string) {
	if a.whitelist.Contains(identity) {
		return
	}
	now := a.clock.Now()
	expires := now.Add(BlockDuration)

	a.heapMu.Lock()
	a.nextSeq++
	seq := a.nextSeq
	a.heapMu.Unlock()

	shard := a.shardFor(identity)
	shard.mu.Lock()
	st, refreshed := shard.blocks[identity]
	if refreshed {
		st.entry.Reason = reason
		st.entry.ExpiresAt = expires
		st.seq = seq
	} else {
		st = &blockState{
			entry: BlockEntry{Identity: identity, Reason: reason, BlockedAt: now, ExpiresAt: expires},
			seq:   seq,
		}
		shard.blocks[identity] = st
	}
	shard.mu.Unlock()

	a.heapMu.Lock()
	heap.Push(&a.pending, expiryItem{identity: identity, expiresAt: expires, seq: seq})
	a.heapMu.Unlock()

	if refreshed {
		a.notify(EventIPBlocked, identity, "block refreshed: "+reason)
	} else {
		a.notify(EventIPBlocked, identity, reason)
	}
}

// IsBlocked reports the active block for an identity. An entry past its
// expiry is treated as absent even before the sweep reclaims it.
func (a *AutoRemediation) IsBlocked(identity string) (BlockEntry, bool) {
	shard := a.shardFor(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	st, ok := shard.blocks[identity]
	if !ok || !a.clock.Now().Before(st.entry.ExpiresAt) {
		return BlockEntry{}, false
	}
	return st.entry, true
}

// Unblock removes the block and the reputation record immediately (admin
// override path). Returns false when the identity was not blocked. The
// orphaned heap item is discarded by seq mismatch when it surfaces.
func (a *AutoRemediation) Unblock(identity string) bool {
	shard := a.shardFor(identity)
	shard.mu.Lock()
	_, ok := shard.blocks[identity]
	delete(shard.blocks, identity)
	shard.mu.Unlock()
	if !ok {
		return false
	}
	a.store.Remove(identity)
	a.notify(EventIPUnblocked, identity, "admin override")
	return true
}

// Sweep drains expired blocks: each removes its BlockEntry and the
// identity's ReputationRecord, a full reset back to untracked. Stale heap
// items from superseded blocks are discarded. Idempotent; a sweep with
// nothing due is a no-op.
func (a *AutoRemediation) Sweep() int {
	now := a.clock.Now()

	var due []expiryItem
	a.heapMu.Lock()
	for a.pending.Len() > 0 {
		next := a.pending[0]
		if next.expiresAt.After(now) {
			break
		}
		heap.Pop(&a.pending)
		due = append(due, next)
	}
	a.heapMu.Unlock()

	var expired []string
	for _, item := range due {
		shard := a.shardFor(item.identity)
		shard.mu.Lock()
		st, ok := shard.blocks[item.identity]
		if ok && st.seq == item.seq {
			delete(shard.blocks, item.identity)
			expired = append(expired, item.identity)
		}
		shard.mu.Unlock()
	}

	for _, id := range expired {
		a.store.Remove(id)
		a.notify(EventIPUnblocked, id, "block expired")
	}
	return len(expired)
}

// BlockedIdentities returns a snapshot of active blocks, sorted by identity
// for stable output.
func (a *AutoRemediation) BlockedIdentities() []BlockEntry {
	now := a.clock.Now()
	var out []BlockEntry
	for _, shard := range a.shards {
		shard.mu.Lock()
		for _, st := range shard.blocks {
			if now.Before(st.entry.ExpiresAt) {
				out = append(out, st.entry)
			}
		}
		shard.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}
