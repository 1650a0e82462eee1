package pool

import (
	"container/list"
	"context"
	"sync"
)

// limiter is a FIFO admission gate over a fixed number of connection slots.
// Waiters are served strictly in arrival order: a released slot is handed
// directly to the oldest parked waiter, never returned to a free count that
// a newcomer could snatch first.
type limiter struct {
	mu         sync.Mutex
	capacity   int
	free       int
	maxWaiters int
	waiters    *list.List // of *waiter
	closed     bool
	idleClosed bool
	closeCh    chan struct{}
	idleCh     chan struct{} // closed when all slots are back after close
}

type waiter struct {
	ready chan struct{} // closed under mu when a slot is granted
}

func newLimiter(capacity, maxWaiters int) *limiter {
	return &limiter{
		capacity:   capacity,
		free:       capacity,
		maxWaiters: maxWaiters,
		waiters:    list.New(),
		closeCh:    make(chan struct{}),
		idleCh:     make(chan struct{}),
	}
}

// acquire blocks until a slot is granted, the context expires, or the
// limiter is closed.
func (l *limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrShuttingDown
	}
	if l.free > 0 && l.waiters.Len() == 0 {
		l.free--
		l.mu.Unlock()
		return nil
	}
	if l.waiters.Len() >= l.maxWaiters {
		l.mu.Unlock()
		return ErrExhausted
	}
	w := &waiter{ready: make(chan struct{})}
	elem := l.waiters.PushBack(w)
	l.mu.Unlock()

	// A grant racing closeAndDrain may win this select: the waiter then
	// walks away with a slot after shutdown began. That is deliberate, not
	// a hole — the loan is accounted like any other and waitIdle does not
	// report idle until it comes back.
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return l.abandon(elem, w, ErrAcquireTimeout)
	case <-l.closeCh:
		return l.abandon(elem, w, ErrShuttingDown)
	}
}

// abandon withdraws a parked waiter. If the grant raced ahead of the
// withdrawal the slot is handed straight back, so no slot is ever lost.
func (l *limiter) abandon(elem *list.Element, w *waiter, cause error) error {
	l.mu.Lock()
	select {
	case <-w.ready:
		l.releaseLocked()
	default:
		l.waiters.Remove(elem)
	}
	l.mu.Unlock()
	return cause
}

func (l *limiter) release() {
	l.mu.Lock()
	l.releaseLocked()
	l.mu.Unlock()
}

func (l *limiter) releaseLocked() {
	if front := l.waiters.Front(); front != nil {
		w := l.waiters.Remove(front).(*waiter)
		close(w.ready) // slot transfers directly, free count unchanged
		return
	}
	l.free++
	if l.closed && l.free == l.capacity && !l.idleClosed {
		l.idleClosed = true
		close(l.idleCh)
	}
}

// inUse returns the number of slots currently on loan.
func (l *limiter) inUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity - l.free
}

// closeAndDrain refuses new acquires and wakes parked waiters with
// ErrShuttingDown. Safe to call more than once.
func (l *limiter) closeAndDrain() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.closeCh)
		if l.free == l.capacity && !l.idleClosed {
			l.idleClosed = true
			close(l.idleCh)
		}
	}
	l.mu.Unlock()
}

// waitIdle blocks until every outstanding slot has been released after
// closeAndDrain, or ctx expires.
func (l *limiter) waitIdle(ctx context.Context) error {
	select {
	case <-l.idleCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
