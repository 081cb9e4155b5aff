// Package port declares the CPU-port collaborator interfaces named in
// spec.md §6. These are explicitly out of scope for this repository (stack
// initialization, pendSV/SysTick wiring, and interrupt masking are
// architecture-specific); the kernel package only ever calls through this
// interface, never assuming a concrete implementation. The simport package
// provides the one concrete implementation in this module, built on
// goroutines and channels for host-side testing.
package port

import "github.com/sirupsen/logrus"

// Port is the architecture-specific glue the scheduler core requires.
type Port interface {
	// InitializeStack prepares a stack frame that, on first resume, begins
	// executing entry. It returns an opaque stack-pointer value understood
	// only by this same Port implementation.
	InitializeStack(stack []byte, entry func()) (initialSP uintptr)

	// RequestContextSwitch asynchronously pends a switch to run at the
	// earliest safe point, mirroring a real pendSV request. Implementations
	// that perform the handoff synchronously inside ContextSwitch (as
	// simport does, for a host-side single-logical-core model) may treat
	// this as a no-op marker.
	RequestContextSwitch()

	// ContextSwitch performs a thread-context handoff: the calling thread,
	// identified by from, relinquishes the CPU to to and this call does not
	// return until from is dispatched again. Only ever called on behalf of
	// the thread that is itself making the call (the kernel's rescheduleSelf
	// path), never from interrupt context.
	ContextSwitch(from, to interface{})

	// Resume wakes to without parking anyone. Exposed for implementations
	// and tests that need to dispatch a parked thread from a goroutine that
	// is not itself any TCB's body — the kernel package does not call this
	// from its own reschedule paths, since in a goroutine-simulated single
	// core, only the thread whose own goroutine is making the call may ever
	// cause Scheduler.Current() to change (see Scheduler.rescheduleSelf).
	Resume(to interface{})

	// RequestFunctionExecution arranges for fn to run in the context
	// identified by tcb before that thread's next resume (used to install
	// the signal-delivery trampoline ahead of a thread's next dispatch).
	// Idempotent if a request is already queued for that thread.
	RequestFunctionExecution(tcb interface{}, fn func())
}

// Binder is an optional capability a Port implementation may provide when
// its InitializeStack cannot yet know which TCB a prepared stack will
// belong to (thread construction calls InitializeStack before the TCB
// exists, so it can pass the TCB itself as the entry point's argument).
// simport implements this to associate its spawned worker goroutine, keyed
// initially by the opaque initialSP InitializeStack returned, with the real
// *kernel.TCB once it is constructed. A real CPU port has no need for this,
// since it stores initialSP directly into the TCB's stack descriptor and
// never needs the reverse mapping.
type Binder interface {
	Bind(initialSP uintptr, tcb interface{})
}

// CurrentRegistrar is an optional capability for registering a TCB that is
// already running on the calling goroutine/execution context at the moment
// it is constructed — the main thread, at boot, never goes through
// InitializeStack (nothing needs to prepare a stack for code that is
// already executing). simport uses this to give the main TCB a resume
// channel to park on the first time it is ever preempted.
type CurrentRegistrar interface {
	RegisterCurrent(tcb interface{})
}

// PanicHookSetter is an optional capability for installing the same
// configurable programmer-fault abort (spec.md §7) the kernel uses, so a
// Port's own internal consistency checks (an unknown stack pointer, an
// unregistered TCB) abort through the embedder's chosen hook rather than a
// hardcoded panic. simport implements this; a real CPU port, which aborts by
// trapping rather than by calling a Go function, has no need for it.
type PanicHookSetter interface {
	SetPanicHook(fn func(msg string))
}

// LogSetter is an optional capability for installing the embedder's logger
// into a Port (or TickSource) so its own lifecycle events — thread start,
// park, resume, tick delivery — log through the same logrus.FieldLogger the
// kernel uses, instead of each collaborator defaulting to the package-level
// logger independently. simport implements this on both Port and TickSource;
// a real CPU port has no lifecycle worth logging at this level (those events
// are only ever observable through a debugger or trace unit).
type LogSetter interface {
	SetLog(log logrus.FieldLogger)
}

// TickSource is the hardware tick timer wiring (spec.md §6 TickTimer).
// bootstrap.Phase2 starts it after global/package-level initialization has
// had a chance to construct timers and synchronization objects.
type TickSource interface {
	// StartAtHz arms the tick source to call onTick at the given frequency.
	StartAtHz(hz int, onTick func())
}
