// Package simport is the one concrete port.Port this module ships: a
// goroutine-per-thread, channel-per-resume host simulation, grounded directly
// on the teacher's step7 M/P/G handoff (_legacy_toysched/toysched/toysched7.go)
// — one goroutine blocking on a dedicated channel until explicitly resumed,
// scaled here from a 2-worker round-robin toy into a single-core dispatcher
// that never makes a scheduling decision itself. Every decision (who runs
// next) is the kernel's; simport only ever executes it.
//
// The resume-channel handoff stands in for "one logical core": exactly one
// worker goroutine is ever unparked at a time, since the kernel only ever resumes
// the thread its own critical section just chose, and every other worker sits
// blocked receiving on its own resume channel.
package simport

import (
	"fmt"
	"sync"

	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/sirupsen/logrus"
)

// worker is the host-side stand-in for a CPU register set parked mid-thread:
// its goroutine blocks on resume until dispatched, optionally runs a single
// queued trampoline function first (RequestFunctionExecution), then
// continues.
type worker struct {
	resume  chan struct{}
	mu      sync.Mutex
	pending func()
}

func newWorker() *worker {
	return &worker{resume: make(chan struct{}, 1)}
}

// setPending installs fn if none is already queued (RequestFunctionExecution
// is specified idempotent).
func (w *worker) setPending(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		w.pending = fn
	}
}

func (w *worker) takePending() func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn := w.pending
	w.pending = nil
	return fn
}

// awaitResume parks the calling goroutine until some other goroutine sends on
// resume, then runs (and clears) any pending trampoline before returning
// control to the caller's own thread body.
func (w *worker) awaitResume() {
	<-w.resume
	if fn := w.takePending(); fn != nil {
		fn()
	}
}

// Port implements port.Port, port.Binder and port.CurrentRegistrar over
// goroutines and channels. The zero value is not usable; construct with New.
type Port struct {
	mu sync.Mutex

	// pending holds workers created by InitializeStack, keyed by the
	// synthetic stack-pointer value returned to the caller, until Bind
	// associates them with the real *kernel.TCB the kernel constructs just
	// afterwards.
	pending map[uintptr]*worker

	// byTCB holds every worker once it is known which TCB it belongs to
	// (populated by Bind, for spawned threads, or directly by
	// RegisterCurrent, for the thread already running when Phase1 is
	// called).
	byTCB map[*kernel.TCB]*worker

	nextSP uintptr

	panicHook func(msg string)
	log       logrus.FieldLogger
}

// New constructs an empty Port, ready to have RegisterCurrent called on it
// for the main thread before bootstrap.Phase1 constructs any other TCB.
func New() *Port {
	return &Port{
		pending:   make(map[uintptr]*worker),
		byTCB:     make(map[*kernel.TCB]*worker),
		panicHook: func(msg string) { panic(msg) },
		log:       logrus.StandardLogger(),
	}
}

// SetPanicHook installs fn as the abort path for this Port's own internal
// consistency checks (port.PanicHookSetter). bootstrap.Phase1 calls this
// with the same hook it gives the scheduler, so a host-side programmer
// fault here (an unknown stack pointer, an unregistered TCB) aborts exactly
// like one raised from inside the kernel.
func (p *Port) SetPanicHook(fn func(msg string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panicHook = fn
}

// SetLog installs log as the destination for this Port's lifecycle
// diagnostics (port.LogSetter).
func (p *Port) SetLog(log logrus.FieldLogger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = log
}

// fault reports msg through the installed logger, then aborts through the
// installed panic hook. Must be called without p.mu held.
func (p *Port) fault(msg string) {
	p.mu.Lock()
	log, hook := p.log, p.panicHook
	p.mu.Unlock()
	log.WithField("component", "simport").Error(msg)
	hook(msg)
}

// InitializeStack spawns a parked goroutine that will run entry once this
// Port's ContextSwitch or Resume first targets the TCB that Bind associates
// with the returned initialSP. stack is unused — simport has no register
// frame to prepare, it has a real goroutine stack underneath instead.
func (p *Port) InitializeStack(stack []byte, entry func()) uintptr {
	w := newWorker()

	p.mu.Lock()
	p.nextSP++
	sp := p.nextSP
	p.pending[sp] = w
	log := p.log
	p.mu.Unlock()

	go func() {
		w.awaitResume()
		log.WithField("component", "simport").WithField("sp", sp).Debug("thread start")
		entry()
	}()

	return sp
}

// Bind moves the worker created by InitializeStack's initialSP into the
// byTCB table under tcb, once the kernel has constructed it.
func (p *Port) Bind(initialSP uintptr, tcb interface{}) {
	t := tcb.(*kernel.TCB)

	p.mu.Lock()
	w, ok := p.pending[initialSP]
	if !ok {
		p.mu.Unlock()
		p.fault(fmt.Sprintf("simport: Bind called with unknown initialSP %d", initialSP))
		return
	}
	delete(p.pending, initialSP)
	p.byTCB[t] = w
	p.mu.Unlock()
}

// RegisterCurrent gives tcb a worker without spawning a goroutine — the
// calling goroutine already is tcb's body, already running. It only ever
// parks later, the first time the kernel switches away from it.
func (p *Port) RegisterCurrent(tcb interface{}) {
	t := tcb.(*kernel.TCB)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTCB[t] = newWorker()
}

func (p *Port) workerFor(tcb interface{}) *worker {
	t := tcb.(*kernel.TCB)

	p.mu.Lock()
	w := p.byTCB[t]
	p.mu.Unlock()
	if w == nil {
		p.fault(fmt.Sprintf("simport: no worker registered for tcb %v", t))
		return nil
	}
	return w
}

// RequestContextSwitch is a no-op here: ContextSwitch and Resume perform the
// handoff synchronously, so there is nothing to defer to a later point.
func (p *Port) RequestContextSwitch() {}

// ContextSwitch wakes to, then — unless from is nil or already Terminated,
// in which case its goroutine is retiring and must not block forever waiting
// for a resume that will never come — parks the calling goroutine (from's
// own body) until it is itself resumed again.
func (p *Port) ContextSwitch(from, to interface{}) {
	p.mu.Lock()
	log := p.log
	p.mu.Unlock()

	log.WithField("component", "simport").WithField("to", tcbName(to)).Debug("resume")
	p.workerFor(to).resume <- struct{}{}

	if from == nil {
		return
	}
	if t := from.(*kernel.TCB); t.State() == kernel.Terminated {
		return
	}
	log.WithField("component", "simport").WithField("from", tcbName(from)).Debug("park")
	p.workerFor(from).awaitResume()
}

// Resume wakes to without parking the caller. Not used by the kernel's own
// reschedule paths (see port.Port.Resume); kept for callers outside a TCB's
// own goroutine that need to dispatch a parked thread directly.
func (p *Port) Resume(to interface{}) {
	p.mu.Lock()
	log := p.log
	p.mu.Unlock()
	log.WithField("component", "simport").WithField("to", tcbName(to)).Debug("resume")
	p.workerFor(to).resume <- struct{}{}
}

func tcbName(tcb interface{}) string {
	if t, ok := tcb.(*kernel.TCB); ok {
		return t.Name
	}
	return "?"
}

// RequestFunctionExecution queues fn to run on tcb's own goroutine, right
// after its next resume and before it continues whatever it was doing —
// idempotent, matching port.Port's contract.
func (p *Port) RequestFunctionExecution(tcb interface{}, fn func()) {
	p.workerFor(tcb).setPending(fn)
}
