package kernel_test

import (
	"testing"

	"github.com/csaszitoma/distortos-go/bootstrap"
	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/csaszitoma/distortos-go/simport"
	"github.com/sirupsen/logrus"
)

// newTestScheduler boots a bare scheduler (main + idle only) over a fresh
// simport.Port, exactly as an embedder's own main would via bootstrap.Phase1,
// so every primitive test below exercises the real dispatch path rather than
// a hand-rolled stand-in.
func newTestScheduler(t *testing.T) (*kernel.Scheduler, *simport.Port) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	p := simport.New()
	k := bootstrap.Phase1(bootstrap.Config{
		IdleStack: kernel.StackDescriptor{Size: 4096},
		Port:      p,
		Log:       log,
	})
	return k.Scheduler, p
}

// spawn starts a new thread of the given priority running body, returning
// once Scheduler.Add has been called. It fails the test via t.Fatalf on a
// non-OK Add, since every test below only ever starts fresh New threads.
func spawn(t *testing.T, sched *kernel.Scheduler, p *simport.Port, name string, priority uint8, body func()) *kernel.TCB {
	t.Helper()
	stack := make([]byte, 4096)
	sp := p.InitializeStack(stack, func() {
		body()
		sched.Terminate()
	})
	tcb := kernel.NewTCB(name, priority, kernel.FIFO, kernel.StackDescriptor{Size: 4096, SP: sp}, nil)
	p.Bind(sp, tcb)
	if errno := sched.Add(tcb); errno != 0 {
		t.Fatalf("Add(%s): %v", name, errno)
	}
	return tcb
}
