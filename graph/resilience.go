package graph

import (
	"container/list"
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Bulkhead is a semaphore of size max_concurrent plus a bounded wait
// queue. It wraps golang.org/x/sync/semaphore
// rather than a hand-rolled channel-of-tokens.
type Bulkhead struct {
	sem      *semaphore.Weighted
	queueCap int
	queued   chan struct{}
}

// NewBulkhead creates a Bulkhead admitting at most maxConcurrent
// simultaneous holders, with a wait queue bounded to queueCap pending
// acquisitions; beyond that, Acquire returns ErrBulkheadRejected
// immediately instead of blocking further.
func NewBulkhead(maxConcurrent, queueCap int) *Bulkhead {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if queueCap < 0 {
		queueCap = 0
	}
	return &Bulkhead{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		queueCap: queueCap,
		queued:   make(chan struct{}, queueCap+maxConcurrent),
	}
}

// Acquire blocks until a permit is available, the wait queue is full (in
// which case it returns ErrBulkheadRejected without blocking), or ctx is
// done.
func (b *Bulkhead) Acquire(ctx context.Context) (func(), error) {
	select {
	case b.queued <- struct{}{}:
	default:
		return nil, ErrBulkheadRejected
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		<-b.queued
		return nil, err
	}
	return func() {
		b.sem.Release(1)
		<-b.queued
	}, nil
}

// CircuitState is the admission state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a CircuitBreaker's admission thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int
	Timeout          time.Duration
	SuccessThreshold int
	FailureWindow    time.Duration
}

// DefaultCircuitBreakerConfig returns the conservative defaults: a
// five-failure threshold, a 30s open timeout, a three-success close
// threshold, and a 60s sliding failure window.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 3,
		FailureWindow:    60 * time.Second,
	}
}

// CircuitBreaker is a failure-rate-driven admission state machine, one
// per named dependency tag.
type CircuitBreaker struct {
	mu                sync.Mutex
	cfg               CircuitBreakerConfig
	state             CircuitState
	failureCount      int
	successCount      int
	lastFailureTime   time.Time
	stateChangedAt    time.Time
	failureTimestamps *list.List
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:               cfg,
		state:             CircuitClosed,
		stateChangedAt:    time.Now(),
		failureTimestamps: list.New(),
	}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once cfg.Timeout has elapsed since the last state change.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.stateChangedAt) >= cb.cfg.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	default:
		cb.cleanOldFailuresLocked()
		return true
	}
}

// Execute runs fn if the circuit admits the call, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	case CircuitClosed:
		cb.cleanOldFailuresLocked()
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.lastFailureTime = now
	cb.failureTimestamps.PushBack(now)
	cb.failureCount++

	switch cb.state {
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	case CircuitClosed:
		cb.cleanOldFailuresLocked()
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	}
}

// cleanOldFailuresLocked drops failure timestamps older than
// cfg.FailureWindow and recomputes failureCount from what remains.
func (cb *CircuitBreaker) cleanOldFailuresLocked() {
	cutoff := time.Now().Add(-cb.cfg.FailureWindow)
	for e := cb.failureTimestamps.Front(); e != nil; {
		next := e.Next()
		if e.Value.(time.Time).Before(cutoff) {
			cb.failureTimestamps.Remove(e)
		}
		e = next
	}
	cb.failureCount = cb.failureTimestamps.Len()
}

func (cb *CircuitBreaker) transitionTo(s CircuitState) {
	cb.state = s
	cb.stateChangedAt = time.Now()
	switch s {
	case CircuitClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.failureTimestamps.Init()
	case CircuitOpen:
		cb.successCount = 0
	case CircuitHalfOpen:
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics snapshots the breaker's counters for observability.
type CircuitBreakerMetrics struct {
	State        CircuitState
	FailureCount int
	SuccessCount int
}

func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerMetrics{State: cb.state, FailureCount: cb.failureCount, SuccessCount: cb.successCount}
}

// CircuitBreakerRegistry is the process-wide map of named-dependency
// circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

func NewCircuitBreakerRegistry(cfg CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{breakers: make(map[string]*CircuitBreaker), cfg: cfg}
}

func (r *CircuitBreakerRegistry) Get(tag string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[tag]
	if !ok {
		cb = NewCircuitBreaker(r.cfg)
		r.breakers[tag] = cb
	}
	return cb
}

// RetryWithBackoff retries fn per policy, honoring ctx cancellation
// between attempts. Only errors policy.Retryable accepts are retried; the
// last error is surfaced on exhaustion.
func RetryWithBackoff(ctx context.Context, policy *RetryPolicy, rng *rand.Rand, fn func(ctx context.Context, attempt int) error) error {
	if policy == nil {
		return fn(ctx, 0)
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, policy.BaseDelay, policy.MaxDelay, rng)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if policy.Retryable == nil || !policy.Retryable(err) {
			return err
		}
	}
	return lastErr
}

// Resilience bundles a Bulkhead and a CircuitBreakerRegistry, the two
// process-wide resilience resources an Engine shares across every node
// execution. Subgraphs share the parent's instance rather than opening
// their own bulkhead and circuit breakers.
type Resilience struct {
	Bulkhead *Bulkhead
	Circuits *CircuitBreakerRegistry
}

func NewResilience(maxConcurrent, queueCap int, cbCfg CircuitBreakerConfig) *Resilience {
	return &Resilience{
		Bulkhead: NewBulkhead(maxConcurrent, queueCap),
		Circuits: NewCircuitBreakerRegistry(cbCfg),
	}
}
