package sentinel

import (
	"hash/fnv"
	"sync"
	"time"
)

// RatePolicy is the base rate-limit policy for one route class, before the
// caller's tier multiplier is applied.
type RatePolicy struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultRatePolicies returns the per-route-class base policies.
func DefaultRatePolicies() map[RouteClass]RatePolicy {
	return map[RouteClass]RatePolicy{
		RouteGeneral:      {Window: 15 * time.Minute, MaxRequests: 100},
		RouteAuth:         {Window: 15 * time.Minute, MaxRequests: 20},
		RouteUpload:       {Window: time.Hour, MaxRequests: 20},
		RouteMessaging:    {Window: time.Minute, MaxRequests: 30},
		RouteJobPosting:   {Window: time.Hour, MaxRequests: 10},
		RouteApplications: {Window: 15 * time.Minute, MaxRequests: 50},
	}
}

// effectiveLimit scales the base allowance by tier. Admin is handled before
// this is consulted.
func effectiveLimit(base int, tier Tier) int {
	switch tier {
	case TierAuthenticated:
		return base * 2
	case TierPremium:
		return base * 3
	default:
		return base
	}
}

const gateShards = 32

type rateWindow struct {
	windowStart time.Time
	count       int
}

type gateShard struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

// GateResult is the outcome of one rate check.
type GateResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// AdmissionGate is the adaptive per-identity rate limiter. Counters are
// fixed windows per identity and route class, sharded like the reputation
// store. Block checks happen upstream: a blocked identity never reaches
// the counter.
type AdmissionGate struct {
	shards   [gateShards]*gateShard
	policies map[RouteClass]RatePolicy
	clock    Clock
}

// NewAdmissionGate builds a gate from the given base policies; nil policies
// fall back to the defaults.
func NewAdmissionGate(policies map[RouteClass]RatePolicy, clock Clock) *AdmissionGate {
	if policies == nil {
		policies = DefaultRatePolicies()
	}
	g := &AdmissionGate{policies: policies, clock: clock}
	for i := range g.shards {
		g.shards[i] = &gateShard{windows: make(map[string]*rateWindow)}
	}
	return g
}

func (g *AdmissionGate) policyFor(route RouteClass) RatePolicy {
	if p, ok := g.policies[route]; ok {
		return p
	}
	return g.policies[RouteGeneral]
}

func (g *AdmissionGate) shardFor(key string) *gateShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return g.shards[h.Sum32()%gateShards]
}

// Allow counts one request against the identity's window for the route
// class and reports whether it fits the tier-adjusted limit. Admin callers
// are never counted.
func (g *AdmissionGate) Allow(identity string, tier Tier, route RouteClass) GateResult {
	policy := g.policyFor(route)
	if tier == TierAdmin {
		return GateResult{Allowed: true, Limit: policy.MaxRequests}
	}

	limit := effectiveLimit(policy.MaxRequests, tier)
	now := g.clock.Now()
	key := identity + "#" + string(route)

	shard := g.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[key]
	if !ok || now.Sub(w.windowStart) >= policy.Window {
		w = &rateWindow{windowStart: now}
		shard.windows[key] = w
	}
	if w.count >= limit {
		retry := w.windowStart.Add(policy.Window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return GateResult{Allowed: false, Limit: limit, RetryAfter: retry}
	}
	w.count++
	return GateResult{Allowed: true, Limit: limit, Remaining: limit - w.count}
}

// Sweep drops windows that ended before the current time, bounding memory
// between request bursts. Idempotent.
func (g *AdmissionGate) Sweep() int {
	now := g.clock.Now()
	removed := 0
	for _, shard := range g.shards {
		shard.mu.Lock()
		for key, w := range shard.windows {
			// Window durations vary per route class; twice the longest
			// configured window is a safe staleness cutoff.
			if now.Sub(w.windowStart) >= g.maxWindow()*2 {
				delete(shard.windows, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (g *AdmissionGate) maxWindow() time.Duration {
	var max time.Duration
	for _, p := range g.policies {
		if p.Window > max {
			max = p.Window
		}
	}
	return max
}
