package kernel

import (
	"github.com/csaszitoma/distortos-go/clock"
	"github.com/csaszitoma/distortos-go/errno"
)

// State is a thread's position in the state machine of spec.md §4.10.
type State int

const (
	New State = iota
	Runnable
	Sleeping
	BlockedOnSemaphore
	BlockedOnMutex
	BlockedOnConditionVariable
	BlockedOnMessageQueueEmpty
	BlockedOnMessageQueueFull
	BlockedOnSignalWait
	BlockedOnJoin
	Terminated
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case Runnable:
		return "Runnable"
	case Sleeping:
		return "Sleeping"
	case BlockedOnSemaphore:
		return "BlockedOnSemaphore"
	case BlockedOnMutex:
		return "BlockedOnMutex"
	case BlockedOnConditionVariable:
		return "BlockedOnConditionVariable"
	case BlockedOnMessageQueueEmpty:
		return "BlockedOnMessageQueueEmpty"
	case BlockedOnMessageQueueFull:
		return "BlockedOnMessageQueueFull"
	case BlockedOnSignalWait:
		return "BlockedOnSignalWait"
	case BlockedOnJoin:
		return "BlockedOnJoin"
	case Terminated:
		return "Terminated"
	default:
		return "unknown"
	}
}

// SchedulingPolicy selects how a thread behaves among peers of equal
// effective priority.
type SchedulingPolicy int

const (
	// RoundRobin threads rotate to the back of their priority band when
	// their quantum expires.
	RoundRobin SchedulingPolicy = iota
	// FIFO threads hold the CPU until they voluntarily yield or block.
	FIFO
)

// MinPriority and MaxPriority bound the priority range (spec.md §3: 0..255,
// higher is more urgent). MaxPriority and MinPriority are reserved by
// bootstrap for the main and idle threads respectively; nothing in this
// package prevents an embedder from also using them for its own threads.
const (
	MinPriority uint8 = 0
	MaxPriority uint8 = 255

	// DefaultQuantum is the round-robin quantum, in ticks, used when a TCB
	// is constructed without an explicit override.
	DefaultQuantum = 4
)

// StackDescriptor is the opaque-to-the-kernel result of the port layer's
// stack preparation (spec.md §6 initializeStack). The kernel never
// interprets Base/Size/SP beyond bookkeeping; only the port layer does.
type StackDescriptor struct {
	Base uintptr
	Size uintptr
	SP   uintptr
}

// TCB is the thread control block (spec component C4). TCBs are always
// constructed by the caller (never by the kernel itself — there is no
// dynamic allocation on the hot path) and handed to a Scheduler via Add.
type TCB struct {
	Name string

	basePriority uint8
	effPriority  uint8
	policy       SchedulingPolicy
	quantumFull  int
	quantum      int

	state State

	stack StackDescriptor

	unblockReason errno.Errno
	deadline      clock.TimePoint
	hasDeadline   bool

	// primary list membership: a TCB is on at most one of these at a time
	// (invariant 1). prev/next are the intrusive links for whichever list
	// currently owns this node.
	prev, next *TCB
	list       *list

	// auxiliary deadline-tracking membership, independent of the primary
	// list: blockUntil registers the TCB here regardless of which primary
	// list it also sits on, so the tick hook can find every timed-out
	// waiter without every primitive's waiter list needing to be
	// deadline-ordered.
	dPrev, dNext *TCB
	onDeadlines  bool

	// ownedMutexes is the head of the intrusive singly-linked list of
	// mutexes this TCB currently owns (threaded through Mutex.ownerNext),
	// used to recompute effective priority when inheritance unwinds.
	ownedMutexes *Mutex

	// blockedOnMutex is the mutex this TCB is currently waiting to lock, if
	// its state is BlockedOnMutex; nil otherwise. Lets Mutex.Lock walk the
	// transitive "blocks-on" chain for priority inheritance propagation and
	// deadlock detection without a scheduler-wide search.
	blockedOnMutex *Mutex

	signals *SignalsReceiver

	join Semaphore // initial count 0; posted exactly once, by Scheduler.Terminate
}

// NewTCB constructs a new thread control block in state New. stack must
// already have been prepared by the port layer (InitializeStack); priority
// is the base priority; signals may be nil if the thread never uses the
// signals API (Thread.GenerateSignal &c. then return ENOTSUP).
func NewTCB(name string, priority uint8, policy SchedulingPolicy, stack StackDescriptor, signals *SignalsReceiver) *TCB {
	t := &TCB{
		Name:         name,
		basePriority: priority,
		effPriority:  priority,
		policy:       policy,
		quantumFull:  DefaultQuantum,
		quantum:      DefaultQuantum,
		state:        New,
		stack:        stack,
		signals:      signals,
	}
	t.join = Semaphore{waiters: list{label: BlockedOnJoin}}
	return t
}

// Priority returns the thread's base priority.
func (t *TCB) Priority() uint8 { return t.basePriority }

// EffectivePriority returns the thread's current (possibly PI/ceiling
// boosted) priority.
func (t *TCB) EffectivePriority() uint8 { return t.effPriority }

// State returns the thread's current state.
func (t *TCB) State() State { return t.state }

// SchedulingPolicy returns the thread's scheduling policy.
func (t *TCB) SchedulingPolicy() SchedulingPolicy { return t.policy }

// SetSchedulingPolicy changes the thread's policy and resets its quantum.
func (t *TCB) SetSchedulingPolicy(p SchedulingPolicy) {
	t.policy = p
	t.quantum = t.quantumFull
}

// UnblockReason returns the reason code stored by the last unblock/timeout,
// valid immediately after a block* call returns.
func (t *TCB) UnblockReason() errno.Errno { return t.unblockReason }

// SignalsReceiver returns the thread's signals receiver block, or nil if it
// has none (in which case every signal operation on this thread returns
// ENOTSUP, per spec.md §4.9).
func (t *TCB) SignalsReceiver() *SignalsReceiver { return t.signals }

// Join blocks the calling thread until t terminates, retrying internally on
// EINTR (a signal delivered to the joiner is not a reason to give up
// waiting for t, it's just a spurious interruption of the wait — mirrors
// Thread::join's own `while (wait() == EINTR)` loop). EDEADLK if t is the
// calling thread itself. Joining an already-Terminated thread returns OK
// immediately, checked against its state before waiting, so any number of
// joins after termination succeed.
func (t *TCB) Join(s *Scheduler) errno.Errno {
	if t == s.Current() {
		return errno.EDEADLK
	}
	tok := s.Guard.Enter()
	terminated := t.state == Terminated
	tok.Exit()
	if terminated {
		return errno.OK
	}
	for {
		reason := t.join.Wait(s)
		if reason != errno.EINTR {
			return reason
		}
	}
}

// recomputeEffectivePriority recomputes effPri = max(basePriority, highest
// effective priority among waiters of any inheritance-protocol mutex this
// TCB owns), per invariant 2. Callers must hold the scheduler's critical
// section and must re-insert t into its current list afterwards if its
// priority changed while enqueued (spec.md §4.2).
func (t *TCB) recomputeEffectivePriority() {
	p := t.basePriority
	for m := t.ownedMutexes; m != nil; m = m.ownerNext {
		switch m.protocol {
		case MutexInheritance:
			if w := m.waiters.front(); w != nil && w.effPriority > p {
				p = w.effPriority
			}
		case MutexProtect:
			if m.ceiling > p {
				p = m.ceiling
			}
		}
	}
	t.effPriority = p
}

// linkOwnedMutex pushes m onto the head of t's owned-mutex list.
func (t *TCB) linkOwnedMutex(m *Mutex) {
	m.ownerNext = t.ownedMutexes
	t.ownedMutexes = m
}

// unlinkOwnedMutex removes m from t's owned-mutex list.
func (t *TCB) unlinkOwnedMutex(m *Mutex) {
	if t.ownedMutexes == m {
		t.ownedMutexes = m.ownerNext
		m.ownerNext = nil
		return
	}
	for cur := t.ownedMutexes; cur != nil; cur = cur.ownerNext {
		if cur.ownerNext == m {
			cur.ownerNext = m.ownerNext
			m.ownerNext = nil
			return
		}
	}
}
