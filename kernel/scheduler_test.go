package kernel_test

import (
	"testing"

	"github.com/csaszitoma/distortos-go/errno"
	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerAddRejectsNonNewTCB(t *testing.T) {
	sched, p := newTestScheduler(t)
	tcb := spawn(t, sched, p, "x", 10, func() {})
	require.Equal(t, errno.OK, tcb.Join(sched))
	assert.Equal(t, errno.EINVAL, sched.Add(tcb))
}

// TestSchedulerAddPreemptsImmediately is scenario S1: spawning a
// higher-priority thread from inside a running thread's own body must run
// the new thread to completion before the spawning thread resumes.
func TestSchedulerAddPreemptsImmediately(t *testing.T) {
	sched, p := newTestScheduler(t)

	sem := kernel.NewSemaphore(0)
	var order []string
	lowDone := kernel.NewSemaphore(0)

	spawn(t, sched, p, "low", 10, func() {
		spawn(t, sched, p, "high", 100, func() {
			order = append(order, "high")
			sem.Post(sched)
		})
		// high has already run to completion by the time Add (inside
		// the nested spawn above) returns control here.
		order = append(order, "low")
		lowDone.Post(sched)
	})

	require.Equal(t, errno.OK, lowDone.Wait(sched))
	assert.Equal(t, []string{"high", "low"}, order)
	assert.Equal(t, 1, sem.Count())
}

func TestSchedulerRemoveTerminatesAndPostsJoin(t *testing.T) {
	sched, p := newTestScheduler(t)
	ran := false
	tcb := spawn(t, sched, p, "x", 10, func() {
		ran = true
	})
	require.Equal(t, errno.OK, tcb.Join(sched))
	assert.True(t, ran)
	assert.Equal(t, kernel.Terminated, tcb.State())
}

func TestSchedulerStartStopTimerWiresThroughTickHook(t *testing.T) {
	sched, _ := newTestScheduler(t)

	fired := 0
	tm := kernel.NewTimer(func() { fired++ })

	sched.StartTimer(tm, sched.Now()+1, 0)
	sched.TickHook()
	assert.Equal(t, 1, fired)
	assert.False(t, tm.Running())

	sched.StartTimer(tm, sched.Now()+1, 0)
	sched.StopTimer(tm)
	sched.TickHook()
	assert.Equal(t, 1, fired)
}
