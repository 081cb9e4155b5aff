package kernel

import (
	"github.com/csaszitoma/distortos-go/clock"
	"github.com/csaszitoma/distortos-go/errno"
)

// MaxSignals bounds the signal-number range (spec.md §3: "pending signal
// bitset, size = implementation-defined N ≤ 32"); this port fixes N at the
// width of a uint32.
const MaxSignals = 32

// SignalActionKind selects what delivering a signal does.
type SignalActionKind int

const (
	// SignalDefault leaves the signal with no handler; generating it is
	// accepted but delivery drops it without invoking anything, matching
	// the embedded scope of this kernel (there is no process to terminate
	// or core-dump, unlike a hosted POSIX default disposition).
	SignalDefault SignalActionKind = iota
	// SignalIgnore drops the signal silently on delivery.
	SignalIgnore
	// SignalHandler invokes Handler(signo, value) on delivery.
	SignalHandler
)

// SignalAction is one entry of a thread's signal→action association table.
type SignalAction struct {
	Kind    SignalActionKind
	Handler func(signo uint8, value int)
}

type signalAssociation struct {
	signo  uint8
	action SignalAction
}

type queuedSignal struct {
	signo uint8
	value int
}

// SignalsReceiver is spec component C11's per-thread state: the pending
// bitset, the queued-siginfo ring, the wait bookkeeping, and the
// signal→action association table. Grounded on original_source's
// SignalsCatcherControlBlock — in particular its fixed-capacity,
// swap-with-last-on-removal association table (this port's setAction
// mirrors clearAssociation's compaction exactly) — generalized from that
// file's data-only control block to also own the wait/deliver logic that
// spec.md §4.9 describes.
type SignalsReceiver struct {
	pending uint32

	waiting    bool
	waitMask   uint32
	wakeSignal uint8
	waiters    list

	queue    []queuedSignal
	queueCap int

	associations    []signalAssociation
	associationsCap int
}

// NewSignalsReceiver constructs a receiver whose queued-signal ring holds
// at most queueCapacity entries and whose association table holds at most
// associationCapacity entries.
func NewSignalsReceiver(queueCapacity, associationCapacity int) *SignalsReceiver {
	return &SignalsReceiver{
		waiters:         list{label: BlockedOnSignalWait},
		queueCap:        queueCapacity,
		associationsCap: associationCapacity,
	}
}

func lowestSetBit(bits uint32) uint8 {
	for i := uint8(0); i < MaxSignals; i++ {
		if bits&(1<<i) != 0 {
			return i
		}
	}
	return 0
}

func (r *SignalsReceiver) findAssociation(signo uint8) int {
	for i := range r.associations {
		if r.associations[i].signo == signo {
			return i
		}
	}
	return -1
}

// SetAction installs action for signo, returning the previous action.
// Setting the zero-value (SignalDefault) action clears any existing entry.
// EINVAL if signo is out of range; EAGAIN if the association table is full
// and signo has no existing entry to overwrite (grounded on
// SignalsCatcherControlBlock::setAction's EAGAIN, not spec.md's ENOMEM,
// since the original distinguishes the queued-signal ring, which is full
// of transient data and uses ENOMEM, from the association table, which is
// a fixed registration surface that uses EAGAIN).
func (r *SignalsReceiver) SetAction(signo uint8, action SignalAction) (SignalAction, errno.Errno) {
	if signo >= MaxSignals {
		return SignalAction{}, errno.EINVAL
	}
	if action.Kind == SignalDefault {
		return r.clearAssociation(signo), errno.OK
	}
	if i := r.findAssociation(signo); i >= 0 {
		prev := r.associations[i].action
		r.associations[i].action = action
		return prev, errno.OK
	}
	if len(r.associations) >= r.associationsCap {
		return SignalAction{}, errno.EAGAIN
	}
	r.associations = append(r.associations, signalAssociation{signo: signo, action: action})
	return SignalAction{}, errno.OK
}

// clearAssociation removes signo's entry, if any, compacting the table by
// moving the last entry into the removed slot (the same swap-and-shrink
// SignalsCatcherControlBlock::clearAssociation performs).
func (r *SignalsReceiver) clearAssociation(signo uint8) SignalAction {
	i := r.findAssociation(signo)
	if i < 0 {
		return SignalAction{}
	}
	prev := r.associations[i].action
	last := len(r.associations) - 1
	r.associations[i] = r.associations[last]
	r.associations = r.associations[:last]
	return prev
}

// GetAction returns the action associated with signo, or the zero value
// (SignalDefault) if none is installed.
func (r *SignalsReceiver) GetAction(signo uint8) SignalAction {
	if i := r.findAssociation(signo); i >= 0 {
		return r.associations[i].action
	}
	return SignalAction{}
}

// GenerateSignal sets signo's pending bit on tcb and wakes or schedules
// delivery as appropriate (spec.md §4.9). Interrupt-safe. ENOTSUP if tcb
// was constructed without a SignalsReceiver; EINVAL if signo is out of
// range.
func (s *Scheduler) GenerateSignal(tcb *TCB, signo uint8) errno.Errno {
	return s.deliverOrQueue(tcb, signo, nil)
}

// QueueSignal is GenerateSignal, but additionally appends (signo, value) to
// the queued-signal ring; the delivery trampoline passes value to the
// signal's handler. Wait, TryWait and TryWaitUntil return only the signal
// number, not the queued value. ENOMEM if the ring is full.
func (s *Scheduler) QueueSignal(tcb *TCB, signo uint8, value int) errno.Errno {
	q := &queuedSignal{signo: signo, value: value}
	return s.deliverOrQueue(tcb, signo, q)
}

func (s *Scheduler) deliverOrQueue(tcb *TCB, signo uint8, q *queuedSignal) errno.Errno {
	r := tcb.signals
	if r == nil {
		return errno.ENOTSUP
	}
	if signo >= MaxSignals {
		return errno.EINVAL
	}

	tok := s.Guard.Enter()

	if q != nil {
		if len(r.queue) >= r.queueCap {
			tok.Exit()
			return errno.ENOMEM
		}
		r.queue = append(r.queue, *q)
	}
	r.pending |= 1 << signo

	waitSatisfied := tcb.state == BlockedOnSignalWait && r.waitMask&(1<<signo) != 0
	if waitSatisfied {
		r.pending &^= 1 << signo
		r.wakeSignal = signo
		tok.Exit()
		s.Unblock(tcb, errno.OK)
		return errno.OK
	}

	action := r.GetAction(signo)
	if action.Kind == SignalDefault || action.Kind == SignalIgnore {
		tok.Exit()
		return errno.OK
	}

	blockedElsewhere := tcb.state != Runnable && tcb.state != New && tcb.state != Terminated &&
		tcb.state != BlockedOnSignalWait
	terminated := tcb.state == Terminated
	tok.Exit()

	switch {
	case blockedElsewhere:
		// Blocked on some other primitive with a handler-bearing signal now
		// pending: interrupt that block so its caller observes EINTR
		// (spec.md §4.9); deliverSignals then runs from the thread's own
		// next dispatch, same as the Runnable/BlockedOnSignalWait case.
		s.Unblock(tcb, errno.EINTR)
		fallthrough
	case !terminated:
		s.port.RequestFunctionExecution(tcb, func() { r.deliverSignals(s, tcb) })
	}
	return errno.OK
}

// popQueuedValue removes and returns the oldest queued value for signo, or
// 0 if none is queued (a plain GenerateSignal, or a signal whose queued
// instance was already consumed).
func (r *SignalsReceiver) popQueuedValue(signo uint8) int {
	for i := range r.queue {
		if r.queue[i].signo == signo {
			v := r.queue[i].value
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return v
		}
	}
	return 0
}

// deliverSignals is the trampoline the port's RequestFunctionExecution runs
// in tcb's own context before its next resume: it drains every currently
// pending signal, lowest-numbered first, invoking each one's handler (if
// any) with its queued value or 0.
func (r *SignalsReceiver) deliverSignals(s *Scheduler, tcb *TCB) {
	for {
		tok := s.Guard.Enter()
		if r.pending == 0 {
			tok.Exit()
			return
		}
		signo := lowestSetBit(r.pending)
		r.pending &^= 1 << signo
		action := r.GetAction(signo)
		value := r.popQueuedValue(signo)
		tok.Exit()

		if action.Kind == SignalHandler && action.Handler != nil {
			action.Handler(signo, value)
		}
	}
}

// Wait consumes and returns the lowest-numbered pending signal in set, if
// any; otherwise blocks until a matching GenerateSignal/QueueSignal occurs.
// ENOTSUP if the current thread has no SignalsReceiver.
func (s *Scheduler) Wait(set uint32) (uint8, errno.Errno) {
	tok := s.Guard.Enter()
	cur := s.Current()
	r := cur.signals
	if r == nil {
		tok.Exit()
		return 0, errno.ENOTSUP
	}
	if match := r.pending & set; match != 0 {
		signo := lowestSetBit(match)
		r.pending &^= 1 << signo
		tok.Exit()
		return signo, errno.OK
	}
	r.waitMask = set
	tok.Exit()

	reason := s.Block(&r.waiters, BlockedOnSignalWait)
	if reason != errno.OK {
		return 0, reason
	}
	return r.wakeSignal, errno.OK
}

// TryWait is Wait, but returns EAGAIN instead of blocking when no signal in
// set is pending.
func (s *Scheduler) TryWait(set uint32) (uint8, errno.Errno) {
	tok := s.Guard.Enter()
	defer tok.Exit()
	cur := s.Current()
	r := cur.signals
	if r == nil {
		return 0, errno.ENOTSUP
	}
	if match := r.pending & set; match != 0 {
		signo := lowestSetBit(match)
		r.pending &^= 1 << signo
		return signo, errno.OK
	}
	return 0, errno.EAGAIN
}

// TryWaitUntil is Wait, but gives up with ETIMEDOUT if deadline passes
// before a matching signal arrives.
func (s *Scheduler) TryWaitUntil(set uint32, deadline clock.TimePoint) (uint8, errno.Errno) {
	tok := s.Guard.Enter()
	cur := s.Current()
	r := cur.signals
	if r == nil {
		tok.Exit()
		return 0, errno.ENOTSUP
	}
	if match := r.pending & set; match != 0 {
		signo := lowestSetBit(match)
		r.pending &^= 1 << signo
		tok.Exit()
		return signo, errno.OK
	}
	r.waitMask = set
	tok.Exit()

	reason := s.BlockUntil(&r.waiters, BlockedOnSignalWait, deadline)
	if reason != errno.OK {
		return 0, reason
	}
	return r.wakeSignal, errno.OK
}
