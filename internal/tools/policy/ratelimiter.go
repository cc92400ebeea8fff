package policy

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffPolicy parameterizes the rate limiter's exponential backoff,
// grounded on the teacher's backoff package formula
// (base = InitialMs * Factor^(attempt-1), jitter = base*Jitter*rand()),
// adapted here into the denial-rate-limiter's own internals rather than
// kept as a standalone generic utility, since its only caller in this core
// is the approval gate's denial backoff (spec §4.4 step 4).
type BackoffPolicy struct {
	InitialMs float64
	MaxMs     float64
	Factor    float64
	Jitter    float64
}

// DefaultBackoffPolicy matches the teacher's DefaultPolicy: 100ms initial,
// 30s max, factor 2, 10% jitter.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0.1}
}

// AggressiveBackoffPolicy matches the teacher's AggressivePolicy: shorter
// delays for keys where a quick retry is tolerable.
func AggressiveBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{InitialMs: 50, MaxMs: 5000, Factor: 1.5, Jitter: 0.05}
}

// ConservativeBackoffPolicy matches the teacher's ConservativePolicy: longer
// delays for keys (e.g. destructive shell commands) that should cool down
// slowly after repeated denial.
func ConservativeBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{InitialMs: 500, MaxMs: 60000, Factor: 2.5, Jitter: 0.2}
}

func computeBackoff(policy BackoffPolicy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// RateLimiter tracks repeated denials per key (tool name or category) and
// auto-denies further prompts until the computed backoff window expires
// (spec §4.4 step 4). An explicit approval resets the key's counter.
type RateLimiter struct {
	mu     sync.Mutex
	policy BackoffPolicy
	state  map[string]*limiterEntry
	now    func() time.Time
}

type limiterEntry struct {
	denials   int
	backoffAt time.Time
}

// NewRateLimiter builds a limiter with the given backoff policy.
func NewRateLimiter(policy BackoffPolicy) *RateLimiter {
	return &RateLimiter{policy: policy, state: make(map[string]*limiterEntry), now: time.Now}
}

// InBackoff reports whether key is currently auto-denied.
func (r *RateLimiter) InBackoff(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state[key]
	if !ok {
		return false
	}
	return r.now().Before(e.backoffAt)
}

// RecordDenial increments key's denial count and (re)computes its backoff
// window from the configured policy.
func (r *RateLimiter) RecordDenial(key string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state[key]
	if !ok {
		e = &limiterEntry{}
		r.state[key] = e
	}
	e.denials++
	d := computeBackoff(r.policy, e.denials, rand.Float64()) //nolint:gosec // jitter, not security-sensitive
	e.backoffAt = r.now().Add(d)
	return d
}

// Reset clears key's denial count, used when an explicit approval is granted.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, key)
}
