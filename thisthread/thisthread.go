// Package thisthread provides the free-function operations a thread
// performs on itself — sleep, yield, priority queries, and signal wait —
// mirroring distortos's ThisThread namespace. Each function takes the
// Scheduler explicitly rather than reaching for a package-level global,
// since this port has none (see bootstrap.Phase1).
package thisthread

import (
	"github.com/csaszitoma/distortos-go/clock"
	"github.com/csaszitoma/distortos-go/errno"
	"github.com/csaszitoma/distortos-go/kernel"
)

// SleepFor blocks the current thread for at least d ticks. Per spec.md's
// recorded open question, this adds one extra tick to the deadline beyond
// the naive now+d, preserving the original's "at least d ticks elapse"
// guarantee against the boundary where the current tick is already
// underway when sleepFor is called.
func SleepFor(s *kernel.Scheduler, d clock.Duration) errno.Errno {
	deadline := s.Now().Add(d).Add(1)
	return sleepUntil(s, deadline)
}

// SleepUntil blocks the current thread until at least the given deadline.
func SleepUntil(s *kernel.Scheduler, deadline clock.TimePoint) errno.Errno {
	return sleepUntil(s, deadline)
}

func sleepUntil(s *kernel.Scheduler, deadline clock.TimePoint) errno.Errno {
	reason := s.SleepUntil(deadline)
	if reason == errno.ETIMEDOUT {
		// Sleep's own deadline expiring is success, not a timeout error —
		// ETIMEDOUT is reserved for tryWaitUntil-style primitives with a
		// distinct success case. Only a signal-delivered EINTR is reported.
		return errno.OK
	}
	return reason
}

// Yield requests a context switch to another Runnable thread of equal or
// higher effective priority, rotating the current thread (whatever its
// scheduling policy) behind its equal-priority peers.
func Yield(s *kernel.Scheduler) {
	s.Yield()
}

// Priority returns the current thread's base priority.
func Priority(s *kernel.Scheduler) uint8 {
	return s.Current().Priority()
}

// EffectivePriority returns the current thread's effective (possibly
// PI/ceiling-boosted) priority.
func EffectivePriority(s *kernel.Scheduler) uint8 {
	return s.Current().EffectivePriority()
}

// Wait blocks the current thread until a signal in set is pending,
// returning the consumed signal number. ENOTSUP if the current thread has
// no signals receiver.
func Wait(s *kernel.Scheduler, set uint32) (uint8, errno.Errno) {
	return s.Wait(set)
}

// TryWait is Wait without blocking; EAGAIN if no signal in set is pending.
func TryWait(s *kernel.Scheduler, set uint32) (uint8, errno.Errno) {
	return s.TryWait(set)
}

// TryWaitUntil is Wait, bounded by an absolute deadline; ETIMEDOUT if it
// passes with no matching signal.
func TryWaitUntil(s *kernel.Scheduler, set uint32, deadline clock.TimePoint) (uint8, errno.Errno) {
	return s.TryWaitUntil(set, deadline)
}
