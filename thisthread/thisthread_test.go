package thisthread_test

import (
	"testing"

	"github.com/csaszitoma/distortos-go/bootstrap"
	"github.com/csaszitoma/distortos-go/clock"
	"github.com/csaszitoma/distortos-go/errno"
	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/csaszitoma/distortos-go/simport"
	"github.com/csaszitoma/distortos-go/thisthread"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func spawn(t *testing.T, sched *kernel.Scheduler, p *simport.Port, name string, priority uint8, body func()) *kernel.TCB {
	t.Helper()
	stack := make([]byte, 4096)
	sp := p.InitializeStack(stack, func() {
		body()
		sched.Terminate()
	})
	tcb := kernel.NewTCB(name, priority, kernel.FIFO, kernel.StackDescriptor{Size: 4096, SP: sp}, nil)
	p.Bind(sp, tcb)
	require.Equal(t, errno.OK, sched.Add(tcb))
	return tcb
}

// TestSleepForWakesWithinOneTickOfRequestedDuration is scenario S3: sleeping
// for 10 ticks must return no earlier than start+10 and no later than
// start+11, per thisthread.SleepFor's documented +1 deadline bias.
func TestSleepForWakesWithinOneTickOfRequestedDuration(t *testing.T) {
	sched, p := newTestScheduler(t)

	ready := kernel.NewSemaphore(0)
	done := kernel.NewSemaphore(0)
	start := sched.Now()
	var reason errno.Errno
	var wakeTick clock.TimePoint

	sleeper := spawn(t, sched, p, "sleeper", 10, func() {
		ready.Post(sched)
		reason = thisthread.SleepFor(sched, clock.Duration(10))
		wakeTick = sched.Now()
		done.Post(sched)
	})

	// Block until the sleeper has actually entered SleepFor and parked, so
	// the tick-driving loop below only ever runs while main itself is the
	// dispatched thread.
	require.Equal(t, errno.OK, ready.Wait(sched))

	for i := 0; i < 10; i++ {
		sched.TickHook()
	}
	assert.Equal(t, kernel.Sleeping, sleeper.State(), "must not wake before start+10")

	sched.TickHook()
	require.Equal(t, errno.OK, done.Wait(sched))

	assert.Equal(t, errno.OK, reason)
	elapsed := wakeTick.Sub(start)
	assert.GreaterOrEqual(t, int64(elapsed), int64(10))
	assert.LessOrEqual(t, int64(elapsed), int64(11))
}

func TestPriorityAndEffectivePriority(t *testing.T) {
	sched, p := newTestScheduler(t)
	done := kernel.NewSemaphore(0)

	var base, eff uint8
	spawn(t, sched, p, "x", 77, func() {
		base = thisthread.Priority(sched)
		eff = thisthread.EffectivePriority(sched)
		done.Post(sched)
	})

	require.Equal(t, errno.OK, done.Wait(sched))
	assert.Equal(t, uint8(77), base)
	assert.Equal(t, uint8(77), eff)
}

func TestYieldWithNoEqualOrHigherPeerContinues(t *testing.T) {
	sched, p := newTestScheduler(t)
	done := kernel.NewSemaphore(0)
	ran := false

	spawn(t, sched, p, "x", 10, func() {
		thisthread.Yield(sched)
		ran = true
		done.Post(sched)
	})

	require.Equal(t, errno.OK, done.Wait(sched))
	assert.True(t, ran)
}

func TestThisThreadWaitConsumesPendingSignal(t *testing.T) {
	sched, p := newTestScheduler(t)
	recv := kernel.NewSignalsReceiver(4, 4)
	done := kernel.NewSemaphore(0)

	var got uint8
	var reason errno.Errno

	stack := make([]byte, 4096)
	sp := p.InitializeStack(stack, func() {
		got, reason = thisthread.Wait(sched, 1<<2)
		done.Post(sched)
		sched.Terminate()
	})
	tcb := kernel.NewTCB("x", 10, kernel.FIFO, kernel.StackDescriptor{Size: 4096, SP: sp}, recv)
	p.Bind(sp, tcb)
	require.Equal(t, errno.OK, sched.Add(tcb))

	require.Equal(t, errno.OK, sched.GenerateSignal(tcb, 2))
	require.Equal(t, errno.OK, done.Wait(sched))

	assert.Equal(t, errno.OK, reason)
	assert.Equal(t, uint8(2), got)
}

func TestTryWaitEAGAINWhenNoSignalPending(t *testing.T) {
	sched, p := newTestScheduler(t)
	recv := kernel.NewSignalsReceiver(4, 4)
	done := kernel.NewSemaphore(0)
	var reason errno.Errno

	stack := make([]byte, 4096)
	sp := p.InitializeStack(stack, func() {
		_, reason = thisthread.TryWait(sched, 1<<2)
		done.Post(sched)
		sched.Terminate()
	})
	tcb := kernel.NewTCB("x", 10, kernel.FIFO, kernel.StackDescriptor{Size: 4096, SP: sp}, recv)
	p.Bind(sp, tcb)
	require.Equal(t, errno.OK, sched.Add(tcb))
	require.Equal(t, errno.OK, done.Wait(sched))
	assert.Equal(t, errno.EAGAIN, reason)
}
