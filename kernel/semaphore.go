package kernel

import (
	"github.com/csaszitoma/distortos-go/clock"
	"github.com/csaszitoma/distortos-go/errno"
)

// Semaphore is spec component C6. The message queue's push/pop pacing and
// Thread.Join's embedded completion semaphore both reduce to its wait/post;
// Mutex keeps its own waiter list and does not use a Semaphore. A
// Semaphore does not store the Scheduler it
// blocks against — callers pass it explicitly, since exactly one Scheduler
// exists per kernel and every primitive shares it.
type Semaphore struct {
	count int

	hasCeiling bool
	ceiling    int

	waiters list
}

// NewSemaphore constructs an unbounded-count semaphore with the given
// initial count.
func NewSemaphore(initialCount int) *Semaphore {
	return &Semaphore{count: initialCount, waiters: list{label: BlockedOnSemaphore}}
}

// NewSemaphoreWithCeiling constructs a semaphore whose count may never
// exceed ceiling; Post returns EOVERFLOW rather than incrementing past it.
func NewSemaphoreWithCeiling(initialCount, ceiling int) *Semaphore {
	return &Semaphore{
		count:      initialCount,
		hasCeiling: true,
		ceiling:    ceiling,
		waiters:    list{label: BlockedOnSemaphore},
	}
}

// Count returns the current count (0 while threads are waiting).
func (sem *Semaphore) Count() int {
	return sem.count
}

// Wait decrements the count if positive, else blocks the current thread
// until a matching Post transfers ownership to it. Returns OK or EINTR.
func (sem *Semaphore) Wait(s *Scheduler) errno.Errno {
	tok := s.Guard.Enter()
	if sem.count > 0 {
		sem.count--
		tok.Exit()
		return errno.OK
	}
	tok.Exit()
	return s.Block(&sem.waiters, sem.waiters.label)
}

// TryWait decrements the count if positive, else returns EAGAIN without
// blocking.
func (sem *Semaphore) TryWait(s *Scheduler) errno.Errno {
	tok := s.Guard.Enter()
	defer tok.Exit()
	if sem.count > 0 {
		sem.count--
		return errno.OK
	}
	return errno.EAGAIN
}

// TryWaitUntil is Wait, but gives up with ETIMEDOUT if deadline passes
// before the semaphore is posted.
func (sem *Semaphore) TryWaitUntil(s *Scheduler, deadline clock.TimePoint) errno.Errno {
	tok := s.Guard.Enter()
	if sem.count > 0 {
		sem.count--
		tok.Exit()
		return errno.OK
	}
	tok.Exit()
	return s.BlockUntil(&sem.waiters, sem.waiters.label, deadline)
}

// Post wakes the highest-priority waiter (transferring ownership directly,
// without touching count) if one exists; otherwise increments count,
// returning EOVERFLOW instead if a ceiling would be exceeded.
// Interrupt-safe (spec.md §5).
func (sem *Semaphore) Post(s *Scheduler) errno.Errno {
	tok := s.Guard.Enter()
	if w := sem.waiters.front(); w != nil {
		tok.Exit()
		s.Unblock(w, errno.OK)
		return errno.OK
	}
	if sem.hasCeiling && sem.count >= sem.ceiling {
		tok.Exit()
		return errno.EOVERFLOW
	}
	sem.count++
	tok.Exit()
	return errno.OK
}
