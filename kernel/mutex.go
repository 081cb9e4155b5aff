package kernel

import "github.com/csaszitoma/distortos-go/errno"

// MutexProtocol selects how a Mutex reacts to priority inversion (spec.md
// §3's "protocol ∈ {none, inheritance, protect}").
type MutexProtocol int

const (
	// MutexNone applies no priority-inversion protocol.
	MutexNone MutexProtocol = iota
	// MutexInheritance boosts the owner to the highest waiter's effective
	// priority, transitively along the blocks-on chain.
	MutexInheritance
	// MutexProtect (priority ceiling) boosts the owner to the mutex's fixed
	// ceiling priority for as long as it is held.
	MutexProtect
)

// Mutex is spec component C7. Grounded on distortos's MutexControlBlock (a
// blocked-list plus an owner pointer); the priority-inheritance propagation
// and EDEADLK cycle check are this port's own synchronization-model work,
// since original_source's control block only carries the data, not the
// propagation algorithm, which spec.md §4.5 describes directly.
type Mutex struct {
	owner     *TCB
	recursive bool
	recursion int

	protocol MutexProtocol
	ceiling  uint8

	ownerNext *Mutex // intrusive link in owner's TCB.ownedMutexes chain

	waiters list
}

// NewMutex constructs an unlocked mutex using protocol (MutexNone or
// MutexInheritance); recursive allows the owner to lock it again without
// blocking, incrementing a recursion count instead.
func NewMutex(protocol MutexProtocol, recursive bool) *Mutex {
	return &Mutex{protocol: protocol, recursive: recursive, waiters: list{label: BlockedOnMutex}}
}

// NewMutexWithCeiling constructs an unlocked mutex using the priority-
// ceiling (MutexProtect) protocol.
func NewMutexWithCeiling(ceiling uint8, recursive bool) *Mutex {
	return &Mutex{protocol: MutexProtect, ceiling: ceiling, recursive: recursive, waiters: list{label: BlockedOnMutex}}
}

// Owner returns the current owner, or nil if unlocked.
func (m *Mutex) Owner() *TCB { return m.owner }

// Lock acquires m, blocking if it is held by another thread. Returns OK,
// EDEADLK (self-lock of a non-recursive mutex), or EINTR.
func (m *Mutex) Lock(s *Scheduler) errno.Errno {
	tok := s.Guard.Enter()
	cur := s.Current()

	if m.owner == nil {
		m.acquire(cur)
		tok.Exit()
		return errno.OK
	}
	if m.owner == cur {
		if !m.recursive {
			tok.Exit()
			return errno.EDEADLK
		}
		m.recursion++
		tok.Exit()
		return errno.OK
	}

	m.propagateInheritance(cur)
	cur.blockedOnMutex = m
	tok.Exit()
	reason := s.Block(&m.waiters, BlockedOnMutex)
	cur.blockedOnMutex = nil
	return reason
}

// TryLock is Lock, but returns EAGAIN instead of blocking when m is held by
// another thread, and EDEADLK when the would-be owner is, transitively, a
// waiter on a mutex current already owns (spec.md §4.5).
func (m *Mutex) TryLock(s *Scheduler) errno.Errno {
	tok := s.Guard.Enter()
	defer tok.Exit()
	cur := s.Current()

	if m.owner == nil {
		m.acquire(cur)
		return errno.OK
	}
	if m.owner == cur {
		if !m.recursive {
			return errno.EDEADLK
		}
		m.recursion++
		return errno.OK
	}
	if m.wouldDeadlock(cur) {
		return errno.EDEADLK
	}
	return errno.EAGAIN
}

// Unlock releases one level of recursion; when it reaches zero, transfers
// ownership to the highest-priority waiter (if any) or leaves m unowned.
// Only the owner may call this; EPERM otherwise. Does not itself preempt
// the caller — callers that need the newly-woken waiter to run immediately
// should follow with s.Yield() (see Scheduler.Unblock's doc comment).
func (m *Mutex) Unlock(s *Scheduler) errno.Errno {
	tok := s.Guard.Enter()
	cur := s.Current()
	if m.owner != cur {
		tok.Exit()
		return errno.EPERM
	}
	m.recursion--
	if m.recursion > 0 {
		tok.Exit()
		return errno.OK
	}

	cur.unlinkOwnedMutex(m)
	cur.recomputeEffectivePriority()
	if cur.list != nil {
		cur.list.reorder(cur)
	}

	next := m.waiters.popFront()
	if next == nil {
		m.owner = nil
		tok.Exit()
		return errno.OK
	}

	m.acquire(next)
	tok.Exit()
	s.Unblock(next, errno.OK)
	return errno.OK
}

// acquire makes t the new owner with recursion 1, links m into t's
// owned-mutex chain, and applies the ceiling/inheritance boost. Must be
// called with the scheduler's critical section held.
func (m *Mutex) acquire(t *TCB) {
	m.owner = t
	m.recursion = 1
	t.linkOwnedMutex(m)
	t.recomputeEffectivePriority()
}

// propagateInheritance raises the effective priority of m's owner, and
// transitively of every thread it is itself blocked waiting to lock, up to
// waiter's effective priority — but only along MutexInheritance-protocol
// links; a MutexProtect mutex's ceiling boost is unconditional (applied at
// acquire time) and never needs runtime propagation. Must be called with
// the scheduler's critical section held.
func (m *Mutex) propagateInheritance(waiter *TCB) {
	cur := m
	for cur != nil {
		owner := cur.owner
		if owner == nil {
			return
		}
		if cur.protocol != MutexInheritance || waiter.effPriority <= owner.effPriority {
			return
		}
		owner.effPriority = waiter.effPriority
		if owner.list != nil {
			owner.list.reorder(owner)
		}
		cur = owner.blockedOnMutex
	}
}

// wouldDeadlock reports whether cur is reachable by walking the blocks-on
// chain starting at m's owner — i.e. whether locking m would complete a
// cycle. Must be called with the scheduler's critical section held.
func (m *Mutex) wouldDeadlock(cur *TCB) bool {
	t := m.owner
	for t != nil {
		if t == cur {
			return true
		}
		next := t.blockedOnMutex
		if next == nil {
			return false
		}
		t = next.owner
	}
	return false
}
