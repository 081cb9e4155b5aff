// Package bootstrap implements spec component C12: the two-phase kernel
// startup sequence (spec.md §6), grounded on original_source's
// lowLevelInitialization1.cpp/lowLevelInitialization2.cpp split. Go has no
// equivalent of "before any global constructor runs", so Phase1 plays that
// role explicitly: the embedder's own main calls it first, before
// constructing any timer, semaphore, or thread of its own.
package bootstrap

import (
	"github.com/csaszitoma/distortos-go/clock"
	"github.com/csaszitoma/distortos-go/critical"
	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/csaszitoma/distortos-go/port"
	"github.com/sirupsen/logrus"
)

// Config carries the boot parameters a real embedded build would fix at
// link time: the idle stack, tick frequency, collaborators, logger and
// panic hook. The priority range and signal-set width are not fields here;
// they are package kernel's constants (MinPriority/MaxPriority,
// MaxSignals). There is deliberately no config-file or flag-parsing
// library behind this struct — see DESIGN.md.
type Config struct {
	// IdleStack is the stack descriptor for the idle thread; the port
	// layer is responsible for having allocated and prepared it (or, for
	// simport, it may be a zero-value placeholder — see simport's doc
	// comment).
	IdleStack kernel.StackDescriptor

	// TickHz is the frequency at which the tick source should be started
	// in Phase2.
	TickHz int

	// Port is the CPU/board collaborator; Phase1 hands it to the
	// scheduler, Phase2 calls StartAtHz on the separately supplied
	// TickSource.
	Port port.Port

	// TickSource is started in Phase2, after embedder setup has had a
	// chance to construct timers and synchronization primitives that
	// Phase2-onward code may immediately begin arming.
	TickSource port.TickSource

	// Log receives boot and lifecycle diagnostics; defaults to
	// logrus.StandardLogger() if nil.
	Log logrus.FieldLogger

	// PanicHook is invoked for programmer faults (spec.md §7) — conditions
	// that indicate a bug in the embedder's own code, not a recoverable
	// runtime condition. Defaults to panic(msg) if nil. Also installed on
	// Port, if it implements port.PanicHookSetter, so the reference port's
	// own internal consistency checks abort the same way.
	PanicHook func(msg string)
}

// Kernel is the constructed-but-not-yet-ticking result of Phase1: the
// scheduler plus the main and idle TCBs it was seeded with.
type Kernel struct {
	Scheduler *kernel.Scheduler
	Main      *kernel.TCB
	Idle      *kernel.TCB

	guard *critical.Guard
	cfg   Config
}

// Phase1 constructs the main TCB in place for the calling goroutine
// (priority kernel.MaxPriority, matching distortos reserving the top
// priority for main) and the idle TCB (priority kernel.MinPriority), then
// constructs the Scheduler over exactly those two threads, with main as
// the initially-current thread. Must be called exactly once, before any
// other kernel entry point, and before any embedder code constructs
// timers, semaphores, mutexes, or additional threads.
func Phase1(cfg Config) *Kernel {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	panicHook := cfg.PanicHook
	if panicHook == nil {
		panicHook = func(msg string) { panic(msg) }
	}
	if h, ok := cfg.Port.(port.PanicHookSetter); ok {
		h.SetPanicHook(panicHook)
	}
	if l, ok := cfg.Port.(port.LogSetter); ok {
		l.SetLog(log)
	}
	if h, ok := cfg.TickSource.(port.PanicHookSetter); ok {
		h.SetPanicHook(panicHook)
	}
	if l, ok := cfg.TickSource.(port.LogSetter); ok {
		l.SetLog(log)
	}

	guard := &critical.Guard{}

	mainTCB := kernel.NewTCB("main", kernel.MaxPriority, kernel.FIFO, kernel.StackDescriptor{}, nil)
	if r, ok := cfg.Port.(port.CurrentRegistrar); ok {
		r.RegisterCurrent(mainTCB)
	}

	// idleLoop never blocks, so it is always a valid (if least-urgent)
	// front-of-ready-list candidate, matching the requirement that the
	// ready list is never empty. sched is assigned below, after
	// InitializeStack returns; the closure only ever runs once idle is
	// actually dispatched, long after Phase1 has returned.
	var sched *kernel.Scheduler
	idleTCB := kernel.NewTCB("idle", kernel.MinPriority, kernel.FIFO, cfg.IdleStack, nil)
	idleSP := cfg.Port.InitializeStack(idleStackBytes(cfg.IdleStack), func() {
		for {
			sched.Yield()
		}
	})
	if b, ok := cfg.Port.(port.Binder); ok {
		b.Bind(idleSP, idleTCB)
	}

	sched = kernel.NewScheduler(guard, mainTCB, idleTCB, cfg.Port, log, panicHook)

	log.WithField("component", "bootstrap").Info("phase1 complete: scheduler constructed over main+idle")

	return &Kernel{Scheduler: sched, Main: mainTCB, Idle: idleTCB, guard: guard, cfg: cfg}
}

func idleStackBytes(d kernel.StackDescriptor) []byte {
	if d.Size == 0 {
		return nil
	}
	return make([]byte, d.Size)
}

// Phase2 starts the tick source. Call after embedder setup (construction
// of timers, semaphores, additional threads) has run, so the first tick
// never fires against a half-initialized system.
func (k *Kernel) Phase2() {
	k.cfg.TickSource.StartAtHz(k.cfg.TickHz, k.Scheduler.TickHook)
}

// Guard returns the scheduler-wide critical section constructed in Phase1.
func (k *Kernel) Guard() *critical.Guard { return k.guard }

// Now is a convenience accessor for the current tick count.
func (k *Kernel) Now() clock.TimePoint { return k.Scheduler.Now() }
