package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLanes_SameSessionSerial(t *testing.T) {
	t.Parallel()

	l := NewLanes()
	var inside, peak atomic.Int32
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), "s1"); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer l.Release("s1")

			cur := inside.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrency = %d, want 1", got)
	}
	if n := l.Len(); n != 0 {
		t.Errorf("lanes left after release = %d, want 0", n)
	}
}

func TestLanes_DifferentSessionsParallel(t *testing.T) {
	t.Parallel()

	l := NewLanes()
	enteredA := make(chan struct{})
	enteredB := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = l.Acquire(context.Background(), "a")
		close(enteredA)
		<-enteredB
		l.Release("a")
	}()
	go func() {
		_ = l.Acquire(context.Background(), "b")
		close(enteredB)
		<-enteredA
		l.Release("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("different sessions blocked each other")
	}
}

func TestLanes_ReleaseUnknownIsNoop(t *testing.T) {
	t.Parallel()
	NewLanes().Release("never-acquired")
}

func TestLanes_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	l := NewLanes()
	if err := l.Acquire(context.Background(), "s1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Acquire(ctx, "s1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("cancelled Acquire waited %v", waited)
	}

	l.Release("s1")
	if n := l.Len(); n != 0 {
		t.Errorf("lanes left = %d, want 0 after the waiter gave up", n)
	}
	if err := l.Acquire(context.Background(), "s1"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	l.Release("s1")
}
