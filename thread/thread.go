// Package thread is the embedder-facing handle wrapping kernel.TCB — start,
// join, priority queries, and signal generation — grounded on
// original_source's Thread.cpp/ThisThread.cpp split between "operations on
// another thread" (this package) and "operations on the calling thread"
// (thisthread).
package thread

import (
	"github.com/csaszitoma/distortos-go/errno"
	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/csaszitoma/distortos-go/port"
)

// Thread pairs a kernel.TCB with the Scheduler it runs under and the body
// function it executes once started. Constructed once per thread, never
// reused across a New→Terminated cycle (matching spec.md's "Terminated
// TCBs must not be re-added").
type Thread struct {
	tcb   *kernel.TCB
	sched *kernel.Scheduler
	run   func()
}

// New prepares a thread of stackSize bytes that will execute run once
// Start is called. signals may be nil if this thread never uses the
// signals API.
func New(
	sched *kernel.Scheduler,
	p port.Port,
	name string,
	priority uint8,
	policy kernel.SchedulingPolicy,
	stackSize uintptr,
	signals *kernel.SignalsReceiver,
	run func(),
) *Thread {
	t := &Thread{sched: sched, run: run}

	stackBytes := make([]byte, stackSize)
	sp := p.InitializeStack(stackBytes, t.runner)
	stack := kernel.StackDescriptor{Size: stackSize, SP: sp}

	t.tcb = kernel.NewTCB(name, priority, policy, stack, signals)
	if b, ok := p.(port.Binder); ok {
		b.Bind(sp, t.tcb)
	}
	return t
}

// runner is the entry point the port dispatches into on this thread's first
// resume (distortos's Thread::threadRunner): it executes the body, then
// terminates the thread via the scheduler, posting the join semaphore.
func (t *Thread) runner() {
	t.run()
	t.sched.Terminate()
}

// TCB returns the underlying thread control block, for code that needs to
// hand it to lower-level kernel/thisthread calls (e.g. comparing against
// Scheduler.Current()).
func (t *Thread) TCB() *kernel.TCB { return t.tcb }

// Start transitions the thread from New to Runnable. EINVAL if it is not
// currently New (already started, or already terminated).
func (t *Thread) Start() errno.Errno {
	return t.sched.Add(t.tcb)
}

// Join blocks until the thread terminates. EDEADLK if called on itself.
func (t *Thread) Join() errno.Errno {
	return t.tcb.Join(t.sched)
}

// Priority returns the thread's base priority.
func (t *Thread) Priority() uint8 { return t.tcb.Priority() }

// EffectivePriority returns the thread's current (possibly boosted)
// priority.
func (t *Thread) EffectivePriority() uint8 { return t.tcb.EffectivePriority() }

// State returns the thread's current lifecycle state.
func (t *Thread) State() kernel.State { return t.tcb.State() }

// GenerateSignal sets signalNumber pending on this thread. ENOTSUP if it
// has no signals receiver.
func (t *Thread) GenerateSignal(signalNumber uint8) errno.Errno {
	return t.sched.GenerateSignal(t.tcb, signalNumber)
}

// QueueSignal is GenerateSignal, additionally carrying value, which the
// delivery trampoline passes to the signal's handler (a signal wait
// returns only the signal number). ENOMEM if the queued-signal ring is full.
func (t *Thread) QueueSignal(signalNumber uint8, value int) errno.Errno {
	return t.sched.QueueSignal(t.tcb, signalNumber, value)
}

// SetSignalAction installs action for signalNumber, returning the previous
// action. ENOTSUP if this thread has no signals receiver.
func (t *Thread) SetSignalAction(signalNumber uint8, action kernel.SignalAction) (kernel.SignalAction, errno.Errno) {
	r := t.tcb.SignalsReceiver()
	if r == nil {
		return kernel.SignalAction{}, errno.ENOTSUP
	}
	return r.SetAction(signalNumber, action)
}
