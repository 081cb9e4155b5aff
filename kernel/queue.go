package kernel

import (
	"github.com/csaszitoma/distortos-go/clock"
	"github.com/csaszitoma/distortos-go/errno"
)

// mqSlot is one element of a MessageQueue's fixed-capacity backing array
// (spec.md §3: "fixed-capacity ring of slots, each holding (priority,
// payload bytes)"). A slot is, at any instant, on exactly one of the free
// list or the filled list, so prev/next are reused between the two —
// mirroring the TCB intrusive-list convention in list.go.
type mqSlot struct {
	priority uint8
	data     []byte

	prev, next *mqSlot // filled-list links; next alone is reused for the free list
}

// mqFilledList is the priority-ordered, FIFO-among-ties list of slots
// awaiting Pop, the same structure as kernel's TCB list in list.go but over
// *mqSlot instead of *TCB (Go's lack of a shared container here is no
// accident of this port — spec.md §3 describes the filled-list and the
// thread ready-list as textually parallel but independently typed
// structures, and a generic container would only buy sharing between two
// call sites).
type mqFilledList struct {
	head, tail *mqSlot
}

func (l *mqFilledList) front() *mqSlot { return l.head }

func (l *mqFilledList) insert(s *mqSlot) {
	var cur *mqSlot
	for cur = l.head; cur != nil; cur = cur.next {
		if cur.priority < s.priority {
			break
		}
	}
	if cur == nil {
		s.prev = l.tail
		s.next = nil
		if l.tail != nil {
			l.tail.next = s
		} else {
			l.head = s
		}
		l.tail = s
	} else {
		s.next = cur
		s.prev = cur.prev
		if cur.prev != nil {
			cur.prev.next = s
		} else {
			l.head = s
		}
		cur.prev = s
	}
}

func (l *mqFilledList) popFront() *mqSlot {
	s := l.head
	if s == nil {
		return nil
	}
	l.head = s.next
	if l.head != nil {
		l.head.prev = nil
	} else {
		l.tail = nil
	}
	s.prev, s.next = nil, nil
	return s
}

// MessageQueue is spec component C9: a fixed-capacity ring of priority-
// tagged, fixed-size messages, paced by a pair of semaphores whose counts
// mirror free and filled slot counts (spec.md §4.7). Capacity and element
// size are fixed at construction; there is no dynamic (re)allocation on the
// push/pop path, consistent with the no-heap-on-the-hot-path constraint
// spec.md §9 calls out.
type MessageQueue struct {
	elementSize int

	slots  []mqSlot
	free   *mqSlot
	filled mqFilledList

	pushSem *Semaphore
	popSem  *Semaphore
}

// NewMessageQueue constructs an empty queue of capacity slots, each holding
// elementSize bytes.
func NewMessageQueue(capacity, elementSize int) *MessageQueue {
	mq := &MessageQueue{
		elementSize: elementSize,
		slots:       make([]mqSlot, capacity),
		pushSem:     NewSemaphore(capacity),
		popSem:      NewSemaphore(0),
	}
	for i := range mq.slots {
		mq.slots[i].data = make([]byte, elementSize)
		mq.slots[i].next = mq.free
		mq.free = &mq.slots[i]
	}
	return mq
}

// Push waits (blocking indefinitely) for a free slot, then enqueues data at
// priority. Returns EMSGSIZE if len(data) != the queue's element size, else
// OK or EINTR.
func (mq *MessageQueue) Push(s *Scheduler, priority uint8, data []byte) errno.Errno {
	if len(data) != mq.elementSize {
		return errno.EMSGSIZE
	}
	if reason := mq.pushSem.Wait(s); reason != errno.OK {
		return reason
	}
	mq.commitPush(s, priority, data)
	return errno.OK
}

// TryPush is Push, but returns EAGAIN instead of blocking when no slot is
// free.
func (mq *MessageQueue) TryPush(s *Scheduler, priority uint8, data []byte) errno.Errno {
	if len(data) != mq.elementSize {
		return errno.EMSGSIZE
	}
	if reason := mq.pushSem.TryWait(s); reason != errno.OK {
		return reason
	}
	mq.commitPush(s, priority, data)
	return errno.OK
}

// TryPushUntil is Push, but gives up with ETIMEDOUT if deadline passes
// before a slot frees up.
func (mq *MessageQueue) TryPushUntil(s *Scheduler, priority uint8, data []byte, deadline clock.TimePoint) errno.Errno {
	if len(data) != mq.elementSize {
		return errno.EMSGSIZE
	}
	if reason := mq.pushSem.TryWaitUntil(s, deadline); reason != errno.OK {
		return reason
	}
	mq.commitPush(s, priority, data)
	return errno.OK
}

func (mq *MessageQueue) commitPush(s *Scheduler, priority uint8, data []byte) {
	tok := s.Guard.Enter()
	slot := mq.free
	mq.free = slot.next
	slot.next = nil
	slot.priority = priority
	copy(slot.data, data)
	mq.filled.insert(slot)
	tok.Exit()
	mq.popSem.Post(s)
}

// Pop waits (blocking indefinitely) for a filled slot, then copies out the
// highest-priority (oldest among ties) message into buf. Returns EMSGSIZE
// if len(buf) != the queue's element size, else the message's priority, OK,
// or EINTR.
func (mq *MessageQueue) Pop(s *Scheduler, buf []byte) (priority uint8, reason errno.Errno) {
	if len(buf) != mq.elementSize {
		return 0, errno.EMSGSIZE
	}
	if reason := mq.popSem.Wait(s); reason != errno.OK {
		return 0, reason
	}
	return mq.commitPop(s, buf), errno.OK
}

// TryPop is Pop, but returns EAGAIN instead of blocking when the queue is
// empty.
func (mq *MessageQueue) TryPop(s *Scheduler, buf []byte) (priority uint8, reason errno.Errno) {
	if len(buf) != mq.elementSize {
		return 0, errno.EMSGSIZE
	}
	if reason := mq.popSem.TryWait(s); reason != errno.OK {
		return 0, reason
	}
	return mq.commitPop(s, buf), errno.OK
}

// TryPopUntil is Pop, but gives up with ETIMEDOUT if deadline passes before
// a message arrives.
func (mq *MessageQueue) TryPopUntil(s *Scheduler, buf []byte, deadline clock.TimePoint) (priority uint8, reason errno.Errno) {
	if len(buf) != mq.elementSize {
		return 0, errno.EMSGSIZE
	}
	if reason := mq.popSem.TryWaitUntil(s, deadline); reason != errno.OK {
		return 0, reason
	}
	return mq.commitPop(s, buf), errno.OK
}

func (mq *MessageQueue) commitPop(s *Scheduler, buf []byte) uint8 {
	tok := s.Guard.Enter()
	slot := mq.filled.popFront()
	priority := slot.priority
	copy(buf, slot.data)
	slot.next = mq.free
	mq.free = slot
	tok.Exit()
	mq.pushSem.Post(s)
	return priority
}
