package thread_test

import (
	"testing"

	"github.com/csaszitoma/distortos-go/bootstrap"
	"github.com/csaszitoma/distortos-go/errno"
	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/csaszitoma/distortos-go/simport"
	"github.com/csaszitoma/distortos-go/thread"
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

func TestThreadStartRunsBodyAndJoinWaitsForTermination(t *testing.T) {
	sched, p := newTestScheduler(t)

	ran := false
	th := thread.New(sched, p, "worker", 10, kernel.FIFO, 4096, nil, func() {
		ran = true
	})

	require.Equal(t, kernel.New, th.State())
	require.Equal(t, errno.OK, th.Start())
	require.Equal(t, errno.OK, th.Join())

	assert.True(t, ran)
	assert.Equal(t, kernel.Terminated, th.State())
}

func TestThreadStartTwiceReturnsEINVAL(t *testing.T) {
	sched, p := newTestScheduler(t)
	th := thread.New(sched, p, "worker", 10, kernel.FIFO, 4096, nil, func() {})

	require.Equal(t, errno.OK, th.Start())
	assert.Equal(t, errno.EINVAL, th.Start())
	require.Equal(t, errno.OK, th.Join())
}

func TestThreadJoinSelfReturnsEDEADLK(t *testing.T) {
	sched, p := newTestScheduler(t)

	var result errno.Errno
	done := kernel.NewSemaphore(0)

	var th *thread.Thread
	th = thread.New(sched, p, "worker", 10, kernel.FIFO, 4096, nil, func() {
		result = th.Join()
		done.Post(sched)
	})
	require.Equal(t, errno.OK, th.Start())
	require.Equal(t, errno.OK, done.Wait(sched))
	assert.Equal(t, errno.EDEADLK, result)
}

func TestThreadPriorityAndEffectivePriority(t *testing.T) {
	sched, p := newTestScheduler(t)
	th := thread.New(sched, p, "worker", 42, kernel.FIFO, 4096, nil, func() {})

	assert.Equal(t, uint8(42), th.Priority())
	assert.Equal(t, uint8(42), th.EffectivePriority())

	require.Equal(t, errno.OK, th.Start())
	require.Equal(t, errno.OK, th.Join())
}

func TestThreadSignalsWithNoReceiverENOTSUP(t *testing.T) {
	sched, p := newTestScheduler(t)
	th := thread.New(sched, p, "worker", 10, kernel.FIFO, 4096, nil, func() {})

	assert.Equal(t, errno.ENOTSUP, th.GenerateSignal(3))
	assert.Equal(t, errno.ENOTSUP, th.QueueSignal(3, 7))
	_, reason := th.SetSignalAction(3, kernel.SignalAction{Kind: kernel.SignalHandler})
	assert.Equal(t, errno.ENOTSUP, reason)

	require.Equal(t, errno.OK, th.Start())
	require.Equal(t, errno.OK, th.Join())
}

func TestThreadGenerateSignalConsumedByWait(t *testing.T) {
	sched, p := newTestScheduler(t)
	recv := kernel.NewSignalsReceiver(4, 4)

	var got uint8
	var reason errno.Errno
	done := kernel.NewSemaphore(0)

	th := thread.New(sched, p, "worker", 10, kernel.FIFO, 4096, recv, func() {
		got, reason = sched.Wait(1 << 5)
		done.Post(sched)
	})

	require.Equal(t, errno.OK, th.Start())
	require.Equal(t, errno.OK, th.GenerateSignal(5))
	require.Equal(t, errno.OK, done.Wait(sched))
	require.Equal(t, errno.OK, th.Join())

	assert.Equal(t, errno.OK, reason)
	assert.Equal(t, uint8(5), got)
}
