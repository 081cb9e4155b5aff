package kernel

import (
	"github.com/csaszitoma/distortos-go/clock"
	"github.com/csaszitoma/distortos-go/critical"
	"github.com/csaszitoma/distortos-go/errno"
	"github.com/csaszitoma/distortos-go/port"
	"github.com/sirupsen/logrus"
)

// Scheduler implements spec component C5: the single scheduler-wide
// mutable singleton (modeled here as a regular, explicitly-constructed
// value rather than a package-level global, since Go has no equivalent of
// "construct before main's global constructors run" — bootstrap.Phase1
// plays that role instead).
type Scheduler struct {
	Guard *critical.Guard

	clk clock.Clock

	ready    *list
	sleeping *list

	dHead *TCB // head of the unordered deadline-tracking auxiliary list

	current *TCB
	idle    *TCB
	inISR   bool

	port      port.Port
	log       logrus.FieldLogger
	panicHook func(msg string)

	timers timerHeap
}

// NewScheduler constructs the scheduler over an already-Runnable main
// thread (the calling execution context) and an already-constructed idle
// thread, per spec.md §6 boot sequence step 1. It is called exactly once,
// by bootstrap.Phase1. panicHook is invoked for programmer faults (spec.md
// §7); a nil panicHook defaults to panic(msg).
func NewScheduler(guard *critical.Guard, mainTCB, idleTCB *TCB, p port.Port, log logrus.FieldLogger, panicHook func(msg string)) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if panicHook == nil {
		panicHook = defaultPanicHook
	}
	s := &Scheduler{
		Guard:     guard,
		ready:     newList(Runnable),
		sleeping:  newList(Sleeping),
		idle:      idleTCB,
		port:      p,
		log:       log,
		panicHook: panicHook,
	}
	mainTCB.state = Runnable
	idleTCB.state = Runnable
	s.ready.insert(idleTCB)
	s.ready.insert(mainTCB)
	s.current = mainTCB
	return s
}

func defaultPanicHook(msg string) { panic(msg) }

// fault logs and aborts through the configured panic hook for a programmer
// fault (spec.md §7: "abort via a configurable panic hook. No recovery
// attempt."). Must be called with the guard held; releases tok's level of
// it before invoking the hook. Any outer level stays held while the hook
// runs: a fault raised from a timer callback still sits inside TickHook's
// own Enter, so there the hook runs with the guard held. The hook is not expected to
// return; callers that invoke fault return immediately afterward with
// whatever zero-value result they can produce, for the case of a
// non-default hook that chooses not to panic.
func (s *Scheduler) fault(tok critical.Token, msg string) {
	tok.Exit()
	s.log.WithField("component", "kernel").Error(msg)
	s.panicHook(msg)
}

// Current returns the thread currently permitted to run.
func (s *Scheduler) Current() *TCB { return s.current }

// Now returns the current tick count.
func (s *Scheduler) Now() clock.TimePoint { return s.clk.Now() }

// Add transitions tcb from New to Runnable and inserts it into the ready
// list. Requires tcb.state == New; returns EINVAL otherwise.
func (s *Scheduler) Add(tcb *TCB) errno.Errno {
	tok := s.Guard.Enter()
	if tcb.state != New {
		tok.Exit()
		return errno.EINVAL
	}
	tcb.state = Runnable
	tcb.quantum = tcb.quantumFull
	s.ready.insert(tcb)
	tok.Exit()
	s.rescheduleSelf()
	return errno.OK
}

// Yield requests a context switch if another Runnable thread outranks or
// ties the current thread: whatever its scheduling policy, the current
// thread is first rotated behind its equal-priority peers.
func (s *Scheduler) Yield() {
	tok := s.Guard.Enter()
	cur := s.current
	if cur != nil {
		// A voluntary yield always rotates the current thread behind its
		// equal-priority peers, matching distortos's ThisThread::yield.
		s.ready.remove(cur)
		s.ready.insert(cur)
	}
	tok.Exit()
	s.rescheduleSelf()
}

// Block moves the current thread from the ready list into l with the
// given state, then switches away. It returns once the thread is unblocked,
// yielding the reason code stored by whichever call woke it (0, EINTR, or
// ETIMEDOUT).
func (s *Scheduler) Block(l *list, state State) errno.Errno {
	return s.blockCommon(l, state, 0, false)
}

// BlockUntil is Block, but also registers deadline with the tick hook: if
// the thread is not woken earlier, the tick hook unblocks it with
// ETIMEDOUT no later than the first tick at or after deadline.
func (s *Scheduler) BlockUntil(l *list, state State, deadline clock.TimePoint) errno.Errno {
	return s.blockCommon(l, state, deadline, true)
}

func (s *Scheduler) blockCommon(l *list, state State, deadline clock.TimePoint, hasDeadline bool) errno.Errno {
	tok := s.Guard.Enter()
	if s.inISR {
		s.fault(tok, "kernel: blocking call made from interrupt/timer-callback context")
		return errno.OK
	}
	cur := s.current
	s.ready.remove(cur)
	cur.state = state
	cur.unblockReason = errno.OK
	cur.hasDeadline = hasDeadline
	cur.deadline = deadline
	l.insert(cur)
	if hasDeadline {
		s.addDeadline(cur)
	}
	tok.Exit()
	s.rescheduleSelf()
	return cur.unblockReason
}

// SleepUntil blocks the current thread, in state Sleeping, until at least
// the given deadline. Returns ETIMEDOUT on a natural wake (thisthread.Sleep*
// translates that to OK — ETIMEDOUT is this call's normal success case, not
// an error) or EINTR if a signal with a handler interrupts the sleep.
func (s *Scheduler) SleepUntil(deadline clock.TimePoint) errno.Errno {
	return s.BlockUntil(s.sleeping, Sleeping, deadline)
}

// Unblock removes tcb from whatever list currently holds it, restores it to
// the ready list as Runnable, and records reason for the matching block*
// call to return. Interrupt-safe: it never touches Scheduler.Current() or
// the port, even when tcb now outranks the thread that is itself making
// this call (Semaphore.Post, Mutex.Unlock's ownership transfer, CondVar.
// Notify* are all reachable from thread context, where the calling
// goroutine IS current's own and cannot be parked here without a matching
// rescheduleSelf). The actual handoff is deferred to whichever thread next
// reaches a real kernel entry point (Yield, Block, Add, Remove) and calls
// rescheduleSelf — exactly as a real pendSV request only takes effect at
// the next exception return, not synchronously inside the ISR that raised
// it.
func (s *Scheduler) Unblock(tcb *TCB, reason errno.Errno) {
	tok := s.Guard.Enter()
	if tcb.onDeadlines {
		s.removeDeadline(tcb)
	}
	if tcb.list != nil {
		tcb.list.remove(tcb)
	}
	tcb.state = Runnable
	tcb.unblockReason = reason
	tcb.quantum = tcb.quantumFull
	s.ready.insert(tcb)
	tok.Exit()
}

// Remove marks the current thread Terminated and removes it from the ready
// list, then invokes hook (after releasing the critical section, so hook
// may itself use ordinary primitive calls such as Semaphore.Post) before
// permanently switching away. hook typically posts a join semaphore (see
// distortos's Thread::terminationHook; Terminate below wraps exactly this).
func (s *Scheduler) Remove(hook func()) {
	tok := s.Guard.Enter()
	cur := s.current
	s.ready.remove(cur)
	cur.state = Terminated
	tok.Exit()
	if hook != nil {
		hook()
	}
	s.rescheduleSelf()
}

// Terminate retires the current thread, posting its embedded join
// semaphore so any Thread.Join callers unblock (distortos's
// Thread::terminationHook). The thread package's runner calls this once
// the thread's body function returns.
func (s *Scheduler) Terminate() {
	s.Remove(func() {
		cur := s.Current()
		cur.join.Post(s)
	})
}

// TickHook advances the tick clock, dispatches expired software timers,
// wakes any thread whose deadline has passed, and — if the current thread
// is round-robin and its quantum has run out — rotates it behind its
// peers. Called from the tick-timer ISR context (interrupt-safe).
func (s *Scheduler) TickHook() {
	tok := s.Guard.Enter()
	now := s.clk.Tick()

	// inISR gates blockCommon for the duration of timer-callback dispatch:
	// spec.md §7 requires "timer callbacks that raise must be treated as
	// programmer faults (blocking is forbidden)". A callback that calls a
	// blocking primitive re-enters this same critical section (the guard is
	// reentrant — see critical.Guard) and hits the inISR check there instead
	// of deadlocking against itself.
	s.inISR = true
	s.timers.expire(now, func(fn func()) {
		fn()
	})
	s.inISR = false

	s.wakeExpired(now)

	if cur := s.current; cur != nil && cur.state == Runnable && cur.policy == RoundRobin {
		cur.quantum--
		if cur.quantum <= 0 {
			cur.quantum = cur.quantumFull
			s.ready.remove(cur)
			s.ready.insert(cur)
		}
	}
	tok.Exit()
}

// StartTimer arms t to first fire at firstFire and, if period is nonzero,
// every period thereafter. Interrupt-safe (spec.md §5).
func (s *Scheduler) StartTimer(t *Timer, firstFire clock.TimePoint, period clock.Duration) {
	tok := s.Guard.Enter()
	s.timers.start(t, firstFire, period)
	tok.Exit()
}

// StopTimer disarms t, if armed. Interrupt-safe (spec.md §5).
func (s *Scheduler) StopTimer(t *Timer) {
	tok := s.Guard.Enter()
	s.timers.stop(t)
	tok.Exit()
}

// wakeExpired scans the deadline-tracking auxiliary list and unblocks every
// TCB whose deadline is at or before now. Must be called with the guard
// held.
func (s *Scheduler) wakeExpired(now clock.TimePoint) {
	t := s.dHead
	for t != nil {
		next := t.dNext
		if !t.deadline.After(now) {
			s.removeDeadlineLocked(t)
			if t.list != nil {
				t.list.remove(t)
			}
			t.state = Runnable
			t.unblockReason = errno.ETIMEDOUT
			t.quantum = t.quantumFull
			s.ready.insert(t)
		}
		t = next
	}
}

func (s *Scheduler) addDeadline(t *TCB) {
	t.dNext = s.dHead
	t.dPrev = nil
	if s.dHead != nil {
		s.dHead.dPrev = t
	}
	s.dHead = t
	t.onDeadlines = true
}

func (s *Scheduler) removeDeadline(t *TCB) {
	s.removeDeadlineLocked(t)
}

func (s *Scheduler) removeDeadlineLocked(t *TCB) {
	if !t.onDeadlines {
		return
	}
	if t.dPrev != nil {
		t.dPrev.dNext = t.dNext
	} else {
		s.dHead = t.dNext
	}
	if t.dNext != nil {
		t.dNext.dPrev = t.dPrev
	}
	t.dPrev, t.dNext, t.onDeadlines = nil, nil, false
}

// rescheduleSelf hands off execution to the ready list's front, if it
// differs from the thread currently running, and is used by every entry
// point that is only ever called by the current thread itself (Add, Yield,
// Block/BlockUntil, Remove). The calling goroutine — which by invariant is
// always the outgoing thread's own body goroutine, since only current's
// goroutine is ever unparked — blocks inside port.ContextSwitch until it is
// dispatched again, the host-side analogue of a CPU physically switching
// stacks.
//
// This is also the ONLY place Scheduler.Current() ever changes. Unblock and
// TickHook both insert newly-Runnable threads into the ready list but
// deliberately never call here themselves: their callers are not
// necessarily the outgoing thread's own goroutine (a real ISR, or a thread
// context that physically keeps executing after waking a peer — Semaphore.
// Post, Mutex.Unlock's ownership transfer, CondVar.Notify*), so reassigning
// current on their behalf would make Current() lie to whichever code runs
// next on the caller's own stack. A higher-priority thread woken that way
// only actually starts running once the still-executing thread reaches its
// own next kernel entry point and calls rescheduleSelf — exactly as a real
// pendSV request only takes effect at the next exception return, never
// synchronously inside the ISR that raised it. Forward progress is
// guaranteed because bootstrap's idle thread never blocks and loops calling
// Yield, so it always re-examines the ready list even if nothing else does.
func (s *Scheduler) rescheduleSelf() {
	tok := s.Guard.Enter()
	from := s.current
	to := s.ready.front()
	if to == from {
		tok.Exit()
		return
	}
	s.current = to
	tok.Exit()

	s.port.RequestContextSwitch()
	s.port.ContextSwitch(from, to)
}
