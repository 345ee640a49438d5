package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/typedefdb/tddb/internal/safego"
	"github.com/typedefdb/tddb/internal/telemetry"
)

// DefaultMaxDeadlockWait is the default total wait budget before a lock
// acquisition fails with ErrDeadlockSuspected.
const DefaultMaxDeadlockWait = 120 * time.Second

// lockPollInterval is how often a waiter re-checks the condition instead of
// blocking forever on the condition variable; it bounds how quickly a waiter
// notices its own deadline has passed.
const lockPollInterval = 10 * time.Second

// callerKey is the context key a caller uses to identify itself for
// reentrant read-lock depth tracking. Reentrancy is a per caller-context
// concept, not a per-goroutine one — callers that want nested reads to be
// free must carry the same key across the nested calls.
type callerKey struct{}

// WithCaller attaches a reentrancy identity to ctx. Nested withReadLock calls
// made through descendants of the returned context are free; callers that
// never set one get a fresh identity per call (no reentrancy).
func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

func callerID(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey{}).(string); ok && v != "" {
		return v
	}
	return ""
}

type moduleState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers int
	writers int
	// readDepth tracks, per caller identity, how many nested read locks it
	// currently holds on this module. Only the 0->1 and 1->0 transitions
	// touch the shared readers counter.
	readDepth map[string]int
}

func newModuleState() *moduleState {
	s := &moduleState{readDepth: make(map[string]int)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// LockManager is a per-module reentrant multi-reader/single-writer lock with
// a deadlock-guard timeout. The zero value is not usable; use
// NewLockManager.
type LockManager struct {
	mu              sync.Mutex
	states          map[string]*moduleState
	maxDeadlockWait time.Duration
}

// NewLockManager constructs a LockManager. maxWait <= 0 selects
// DefaultMaxDeadlockWait.
func NewLockManager(maxWait time.Duration) *LockManager {
	if maxWait <= 0 {
		maxWait = DefaultMaxDeadlockWait
	}
	return &LockManager{states: make(map[string]*moduleState), maxDeadlockWait: maxWait}
}

func (lm *LockManager) getState(module string) *moduleState {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	s, ok := lm.states[module]
	if !ok {
		s = newModuleState()
		lm.states[module] = s
	}
	return s
}

// WithReadLock runs fn holding a read lock on module. Nested calls from the
// same caller identity (see WithCaller) on the same module do not block.
func (lm *LockManager) WithReadLock(ctx context.Context, module string, fn func(ctx context.Context) error) error {
	s := lm.getState(module)
	caller := callerID(ctx)
	waitStart := time.Now()
	top, err := lm.acquireRead(s, caller)
	telemetry.LockWaitDuration.WithLabelValues("read").Observe(time.Since(waitStart).Seconds())
	if err != nil {
		if errors.Is(err, ErrDeadlockSuspected) {
			telemetry.DeadlocksDetectedTotal.Inc()
		}
		return err
	}
	if top && caller == "" {
		// No reentrancy identity: synthesize one so fn's own nested reads
		// (if any) share an identity with each other. This acquisition is
		// not recorded under it, so the first nested read acquires anew.
		ctx = WithCaller(ctx, fmt.Sprintf("anon-%p", fn))
	}
	defer lm.releaseRead(s, caller)
	return fn(ctx)
}

// WithWriteLock runs fn holding the write lock on module. Write locks are not
// re-entrant; a caller already holding a read lock on the same module that
// attempts a write lock will block until its own read releases, which can
// self-deadlock and is surfaced as ErrDeadlockSuspected once the timeout
// elapses.
func (lm *LockManager) WithWriteLock(ctx context.Context, module string, fn func(ctx context.Context) error) error {
	s := lm.getState(module)
	waitStart := time.Now()
	err := lm.acquireWrite(s)
	telemetry.LockWaitDuration.WithLabelValues("write").Observe(time.Since(waitStart).Seconds())
	if err != nil {
		if errors.Is(err, ErrDeadlockSuspected) {
			telemetry.DeadlocksDetectedTotal.Inc()
		}
		return err
	}
	defer lm.releaseWrite(s)
	return fn(ctx)
}

func (lm *LockManager) acquireRead(s *moduleState, caller string) (outermost bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != "" && s.readDepth[caller] > 0 {
		s.readDepth[caller]++
		return false, nil
	}

	deadline := time.Now().Add(lm.maxDeadlockWait)
	for s.writers > 0 {
		if !waitUntil(s.cond, deadline) {
			return false, fmt.Errorf("%w: read lock wait exceeded %s", ErrDeadlockSuspected, lm.maxDeadlockWait)
		}
	}
	s.readers++
	if caller != "" {
		s.readDepth[caller] = 1
	}
	return true, nil
}

func (lm *LockManager) releaseRead(s *moduleState, caller string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != "" && s.readDepth[caller] > 1 {
		s.readDepth[caller]--
		return
	}
	if caller != "" {
		delete(s.readDepth, caller)
	}
	s.readers--
	s.cond.Broadcast()
}

func (lm *LockManager) acquireWrite(s *moduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(lm.maxDeadlockWait)
	for s.writers > 0 {
		if !waitUntil(s.cond, deadline) {
			return fmt.Errorf("%w: write lock wait exceeded %s", ErrDeadlockSuspected, lm.maxDeadlockWait)
		}
	}
	s.writers++
	for s.readers > 0 {
		if !waitUntil(s.cond, deadline) {
			// Roll back the writer count before failing so a timed-out
			// waiter never leaves the module permanently unwritable.
			s.writers--
			s.cond.Broadcast()
			return fmt.Errorf("%w: write lock wait exceeded %s", ErrDeadlockSuspected, lm.maxDeadlockWait)
		}
	}
	return nil
}

func (lm *LockManager) releaseWrite(s *moduleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writers--
	s.cond.Broadcast()
}

// waitUntil blocks on cond in lockPollInterval slices so it periodically
// re-checks the deadline even though sync.Cond has no native timed wait.
// Caller must hold cond.L.
func waitUntil(cond *sync.Cond, deadline time.Time) bool {
	if time.Now().After(deadline) {
		return false
	}
	done := make(chan struct{})
	timer := time.AfterFunc(minDuration(lockPollInterval, time.Until(deadline)), func() {
		safego.Go(func() {
			cond.L.Lock()
			close(done)
			cond.Broadcast()
			cond.L.Unlock()
		})
	})
	defer timer.Stop()
	cond.Wait()
	select {
	case <-done:
	default:
	}
	return !time.Now().After(deadline)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
