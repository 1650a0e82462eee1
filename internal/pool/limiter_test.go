package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLimiterFastPath(t *testing.T) {
	l := newLimiter(2, 4)
	ctx := context.Background()

	if err := l.acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := l.acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if got := l.inUse(); got != 2 {
		t.Errorf("inUse = %d, want 2", got)
	}

	l.release()
	if got := l.inUse(); got != 1 {
		t.Errorf("inUse after release = %d, want 1", got)
	}
}

func TestLimiterExhausted(t *testing.T) {
	l := newLimiter(1, 1)
	ctx := context.Background()

	if err := l.acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// One waiter fits in the queue.
	waiterErr := make(chan error, 1)
	go func() {
		waiterErr <- l.acquire(ctx)
	}()
	waitForWaiters(t, l, 1)

	// The queue is full now.
	if err := l.acquire(ctx); !errors.Is(err, ErrExhausted) {
		t.Errorf("acquire with full queue = %v, want ErrExhausted", err)
	}

	l.release()
	if err := <-waiterErr; err != nil {
		t.Errorf("parked waiter = %v, want nil", err)
	}
}

func TestLimiterFIFOOrder(t *testing.T) {
	l := newLimiter(1, 8)
	ctx := context.Background()

	if err := l.acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	const waiters = 4
	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		i := i
		go func() {
			if err := l.acquire(ctx); err != nil {
				t.Errorf("waiter %d: %v", i, err)
				done <- struct{}{}
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			done <- struct{}{}
		}()
		waitForWaiters(t, l, i+1)
	}

	for i := 0; i < waiters+1; i++ {
		l.release()
		if i < waiters {
			<-done
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("service order = %v, want strict arrival order", order)
		}
	}
}

func TestLimiterAcquireTimeout(t *testing.T) {
	l := newLimiter(1, 4)
	if err := l.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.acquire(ctx); !errors.Is(err, ErrAcquireTimeout) {
		t.Errorf("acquire = %v, want ErrAcquireTimeout", err)
	}

	// The abandoned waiter must not leak a queue entry: the next release
	// returns the slot to the free count.
	l.release()
	if got := l.inUse(); got != 0 {
		t.Errorf("inUse = %d, want 0", got)
	}
}

func TestLimiterCloseWakesWaiters(t *testing.T) {
	l := newLimiter(1, 4)
	ctx := context.Background()
	if err := l.acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	waiterErr := make(chan error, 1)
	go func() {
		waiterErr <- l.acquire(ctx)
	}()
	waitForWaiters(t, l, 1)

	l.closeAndDrain()
	if err := <-waiterErr; !errors.Is(err, ErrShuttingDown) {
		t.Errorf("parked waiter after close = %v, want ErrShuttingDown", err)
	}
	if err := l.acquire(ctx); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("acquire after close = %v, want ErrShuttingDown", err)
	}

	// waitIdle completes once the outstanding slot comes back.
	idleCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := l.waitIdle(idleCtx); !errors.Is(err, context.DeadlineExceeded) {
		// Slot still on loan; waitIdle must not return early.
		t.Fatalf("waitIdle with outstanding loan = %v, want DeadlineExceeded", err)
	}
	l.release()
	idleCtx2, cancel2 := context.WithTimeout(ctx, time.Second)
	defer cancel2()
	if err := l.waitIdle(idleCtx2); err != nil {
		t.Errorf("waitIdle after release = %v, want nil", err)
	}
}

func TestLimiterCloseIdempotent(t *testing.T) {
	l := newLimiter(1, 1)
	l.closeAndDrain()
	l.closeAndDrain()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.waitIdle(ctx); err != nil {
		t.Errorf("waitIdle on idle closed limiter = %v, want nil", err)
	}
}

// waitForWaiters spins until n waiters are parked.
func waitForWaiters(t *testing.T, l *limiter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		parked := l.waiters.Len()
		l.mu.Unlock()
		if parked >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d parked waiters", n)
}
