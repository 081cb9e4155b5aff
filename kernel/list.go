package kernel

// list is the priority-ordered intrusive doubly-linked list of spec
// component C3: insert finds the first element with strictly lower
// effective priority and splices before it (so insertion is FIFO among
// ties, per invariant 3); remove unlinks in O(1) using the node's own
// links, with no traversal needed.
//
// A *TCB belongs to at most one list at a time (invariant 1); label
// records which State membership in this list represents, purely for
// debugging/assertions — the list itself does not enforce it.
type list struct {
	label      State
	head, tail *TCB
	size       int
}

func newList(label State) *list {
	return &list{label: label}
}

// empty reports whether the list has no members.
func (l *list) empty() bool { return l.head == nil }

// front returns the highest-priority (or, among ties, earliest-inserted)
// member, or nil if the list is empty.
func (l *list) front() *TCB { return l.head }

// insert splices t into the list ordered by descending effective priority,
// after every existing node of equal-or-higher priority (FIFO among ties).
// t must not already belong to any list.
func (l *list) insert(t *TCB) {
	var cur *TCB
	for cur = l.head; cur != nil; cur = cur.next {
		if cur.effPriority < t.effPriority {
			break
		}
	}
	if cur == nil {
		t.prev = l.tail
		t.next = nil
		if l.tail != nil {
			l.tail.next = t
		} else {
			l.head = t
		}
		l.tail = t
	} else {
		t.next = cur
		t.prev = cur.prev
		if cur.prev != nil {
			cur.prev.next = t
		} else {
			l.head = t
		}
		cur.prev = t
	}
	t.list = l
	l.size++
}

// remove unlinks t from the list. t must currently belong to this list.
func (l *list) remove(t *TCB) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		l.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		l.tail = t.prev
	}
	t.prev, t.next, t.list = nil, nil, nil
	l.size--
}

// reorder re-splices t after its effective priority has changed while it
// was enqueued (spec.md §4.2: "the list structure itself contains no
// caching").
func (l *list) reorder(t *TCB) {
	l.remove(t)
	l.insert(t)
}

// popFront removes and returns the front element, or nil if empty.
func (l *list) popFront() *TCB {
	t := l.head
	if t != nil {
		l.remove(t)
	}
	return t
}
