package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockManager_ReadersConcurrent(t *testing.T) {
	lm := NewLockManager(time.Second)
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lm.WithReadLock(context.Background(), "Kb", func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&maxActive)
					if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithReadLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxActive < 2 {
		t.Fatalf("expected concurrent readers, max observed concurrency was %d", maxActive)
	}
}

func TestLockManager_WriteExcludesReaders(t *testing.T) {
	lm := NewLockManager(time.Second)
	var inWrite int32
	var overlapDetected int32
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = lm.WithWriteLock(context.Background(), "Kb", func(ctx context.Context) error {
			atomic.StoreInt32(&inWrite, 1)
			time.Sleep(30 * time.Millisecond)
			atomic.StoreInt32(&inWrite, 0)
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = lm.WithReadLock(context.Background(), "Kb", func(ctx context.Context) error {
			if atomic.LoadInt32(&inWrite) == 1 {
				atomic.StoreInt32(&overlapDetected, 1)
			}
			return nil
		})
	}()
	wg.Wait()

	if overlapDetected == 1 {
		t.Fatal("read lock acquired while write lock held")
	}
}

func TestLockManager_ReentrantRead(t *testing.T) {
	lm := NewLockManager(time.Second)
	ctx := WithCaller(context.Background(), "caller-1")

	nestedRan := false
	err := lm.WithReadLock(ctx, "Kb", func(ctx context.Context) error {
		return lm.WithReadLock(ctx, "Kb", func(ctx context.Context) error {
			nestedRan = true
			return nil
		})
	})
	if err != nil {
		t.Fatalf("nested read lock should not deadlock: %v", err)
	}
	if !nestedRan {
		t.Fatal("nested read lock body never ran")
	}
}

func TestLockManager_WriteTimesOutOnHeldRead(t *testing.T) {
	lm := NewLockManager(40 * time.Millisecond)

	readHeld := make(chan struct{})
	releaseRead := make(chan struct{})
	go func() {
		_ = lm.WithReadLock(context.Background(), "Kb", func(ctx context.Context) error {
			close(readHeld)
			<-releaseRead
			return nil
		})
	}()
	<-readHeld
	defer close(releaseRead)

	err := lm.WithWriteLock(context.Background(), "Kb", func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, ErrDeadlockSuspected) {
		t.Fatalf("expected ErrDeadlockSuspected, got %v", err)
	}
}

func TestLockManager_WriteSucceedsAfterReadReleases(t *testing.T) {
	lm := NewLockManager(time.Second)

	done := make(chan struct{})
	go func() {
		_ = lm.WithReadLock(context.Background(), "Kb", func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})
		close(done)
	}()
	<-done

	ran := false
	err := lm.WithWriteLock(context.Background(), "Kb", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithWriteLock: %v", err)
	}
	if !ran {
		t.Fatal("write lock body never ran")
	}
}
