package kernel

import "github.com/csaszitoma/distortos-go/errno"

// ConditionVariable is spec component C8: a priority-ordered waiter list
// tied to a caller-supplied Mutex at each wait call (spec.md §4.6 — unlike
// some POSIX implementations, nothing here binds a ConditionVariable to one
// particular mutex permanently).
type ConditionVariable struct {
	waiters list
}

// NewConditionVariable constructs an empty condition variable.
func NewConditionVariable() *ConditionVariable {
	return &ConditionVariable{waiters: list{label: BlockedOnConditionVariable}}
}

// Wait requires m to be owned by the current thread. Within one critical
// section it unlocks m, enqueues the current thread, and blocks; on wake it
// reacquires m (which may itself block) before returning. The reason
// returned is whichever of OK/EINTR the condition-variable wake carried;
// reacquiring m can additionally return EDEADLK if m is non-recursive and
// already owned by current, which cannot happen here since Wait always
// unlocked m itself first.
func (c *ConditionVariable) Wait(s *Scheduler, m *Mutex) errno.Errno {
	tok := s.Guard.Enter()
	cur := s.Current()
	if m.owner != cur {
		tok.Exit()
		return errno.EPERM
	}

	// Unlock m inline — the handoff to m's next owner and the wait list
	// splice below must happen in the same critical section as the unlock,
	// per spec.md §4.6, so this inlines Mutex.Unlock's bookkeeping rather
	// than calling it (which releases the guard before waking a waiter, so
	// that waiter could be woken before this thread has enqueued on c).
	m.recursion--
	var handoff *TCB
	if m.recursion == 0 {
		cur.unlinkOwnedMutex(m)
		cur.recomputeEffectivePriority()
		if cur.list != nil {
			cur.list.reorder(cur)
		}
		if next := m.waiters.popFront(); next != nil {
			m.acquire(next)
			handoff = next
		} else {
			m.owner = nil
		}
	}

	// The guard is reentrant, so Unblock nests inside tok; the enqueue
	// mirrors Scheduler.blockCommon without releasing tok in between.
	if handoff != nil {
		s.Unblock(handoff, errno.OK)
	}
	if s.inISR {
		s.fault(tok, "kernel: blocking call made from interrupt/timer-callback context")
		return errno.OK
	}
	s.ready.remove(cur)
	cur.state = BlockedOnConditionVariable
	cur.unblockReason = errno.OK
	cur.hasDeadline = false
	c.waiters.insert(cur)
	tok.Exit()
	s.rescheduleSelf()
	reason := cur.unblockReason

	if lockReason := m.Lock(s); lockReason != errno.OK && reason == errno.OK {
		reason = lockReason
	}
	return reason
}

// NotifyOne wakes the highest-priority waiter, if any. It does not itself
// reacquire or transfer any mutex — the woken thread's own Wait call
// contends for the mutex like any other locker.
func (c *ConditionVariable) NotifyOne(s *Scheduler) {
	tok := s.Guard.Enter()
	w := c.waiters.front()
	tok.Exit()
	if w != nil {
		s.Unblock(w, errno.OK)
	}
}

// NotifyAll wakes every waiter; they contend for the mutex in priority
// order once each resumes inside Wait.
func (c *ConditionVariable) NotifyAll(s *Scheduler) {
	for {
		tok := s.Guard.Enter()
		w := c.waiters.front()
		tok.Exit()
		if w == nil {
			return
		}
		s.Unblock(w, errno.OK)
	}
}
