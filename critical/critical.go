// Package critical implements the scheduler-critical section guard (spec
// component C2): a scoped, nestable suppression of scheduler-aware interrupts.
//
// On real hardware this raises the interrupt priority mask; here, with no
// interrupt controller to mask, a single mutex plays the same role: it
// serializes every access to kernel-owned state (scheduler lists, the timer
// heap, TCB fields read outside their owning thread), which on a single
// logical core is exactly what "interrupts masked" buys you. This is the
// idiomatic host-side model of the guard, not a workaround — see DESIGN.md.
package critical

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Guard is the scheduler-wide critical section. The kernel owns exactly one
// Guard; every other package that touches shared kernel state takes it by
// pointer rather than constructing its own.
type Guard struct {
	mu sync.Mutex

	meta   sync.Mutex // protects holder/depth only, held only briefly
	holder int64      // goroutine id currently holding mu, 0 if unheld
	depth  int
}

// Enter acquires the critical section, or increments the nesting depth if the
// calling goroutine already holds it by way of a prior Enter on the same
// execution path — real masking, like a priority-raise instruction, is a
// no-op for the interrupt that already raised it, and this mirrors that: a
// goroutine that calls Enter a second time before its first Exit does not
// deadlock against itself, it just nests.
//
// Returns a token that must be passed to Exit; every exit path — normal
// return, panic unwind via defer — must call Exit exactly once per Enter, in
// strict LIFO order with any other Enter calls made by the same goroutine.
func (g *Guard) Enter() Token {
	id := goroutineID()

	g.meta.Lock()
	if g.holder == id {
		g.depth++
		g.meta.Unlock()
		return Token{g: g}
	}
	g.meta.Unlock()

	g.mu.Lock()

	g.meta.Lock()
	g.holder = id
	g.depth++
	g.meta.Unlock()

	return Token{g: g}
}

// Exit releases one level of nesting acquired by the matching Enter, and
// releases the underlying lock once the outermost Enter's nesting unwinds.
func (t Token) Exit() {
	g := t.g
	g.meta.Lock()
	g.depth--
	last := g.depth == 0
	if last {
		g.holder = 0
	}
	g.meta.Unlock()
	if last {
		g.mu.Unlock()
	}
}

// Token is the capability produced by Enter and consumed by Exit.
type Token struct {
	g *Guard
}

// Depth returns the current nesting depth; 0 means no goroutine holds the
// guard. Intended for assertions ("this must run with the guard held") in
// code that cannot take a Token parameter without threading it through every
// call (e.g. panics from deeply nested helpers).
func (g *Guard) Depth() int {
	g.meta.Lock()
	defer g.meta.Unlock()
	return g.depth
}

// goroutineID extracts the calling goroutine's runtime id by parsing the
// header line of its own stack trace ("goroutine 123 [running]: ..."). The
// runtime deliberately exposes no public API for this; parsing runtime.Stack
// is the standard workaround reached for when a recursive-lock's ownership
// check needs to compare "am I the goroutine that already holds this" and no
// token is threaded through the call chain to say so.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		panic("critical: could not parse goroutine id: " + err.Error())
	}
	return id
}
