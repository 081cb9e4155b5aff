package kernel_test

import (
	"testing"

	"github.com/csaszitoma/distortos-go/errno"
	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionVariableWaitRequiresOwnership(t *testing.T) {
	m := kernel.NewMutex(kernel.MutexNone, false)
	cv := kernel.NewConditionVariable()
	sched, _ := newTestScheduler(t)
	assert.Equal(t, errno.EPERM, cv.Wait(sched, m))
}

// TestConditionVariableWaitNotifyReacquiresMutex spawns a waiter that locks
// m, waits on cv (atomically releasing m), and expects to observe the
// predicate flipped and m re-held once NotifyOne wakes it.
func TestConditionVariableWaitNotifyReacquiresMutex(t *testing.T) {
	m := kernel.NewMutex(kernel.MutexNone, false)
	cv := kernel.NewConditionVariable()
	sched, p := newTestScheduler(t)

	ready := kernel.NewSemaphore(0)
	done := kernel.NewSemaphore(0)
	predicate := false
	var observedPredicate bool
	var waitResult errno.Errno

	spawn(t, sched, p, "waiter", 50, func() {
		require.Equal(t, errno.OK, m.Lock(sched))
		ready.Post(sched)
		for !predicate {
			waitResult = cv.Wait(sched, m)
			if waitResult != errno.OK {
				break
			}
		}
		observedPredicate = predicate
		require.Equal(t, sched.Current(), m.Owner())
		require.Equal(t, errno.OK, m.Unlock(sched))
		done.Post(sched)
	})

	require.Equal(t, errno.OK, ready.Wait(sched))
	require.Equal(t, errno.OK, m.Lock(sched))
	predicate = true
	cv.NotifyOne(sched)
	require.Equal(t, errno.OK, m.Unlock(sched))

	require.Equal(t, errno.OK, done.Wait(sched))
	assert.Equal(t, errno.OK, waitResult)
	assert.True(t, observedPredicate)
}

// TestConditionVariableWaitHandsMutexDirectlyToBlockedLocker exercises the
// branch of Wait that releases m straight into a thread already blocked on
// m.Lock (m.waiters non-empty at the moment of the atomic unlock-and-enqueue),
// rather than leaving m unowned for the next locker to contend for fresh.
func TestConditionVariableWaitHandsMutexDirectlyToBlockedLocker(t *testing.T) {
	m := kernel.NewMutex(kernel.MutexNone, false)
	cv := kernel.NewConditionVariable()
	sched, p := newTestScheduler(t)

	ownerLocked := kernel.NewSemaphore(0)
	ownerContinue := kernel.NewSemaphore(0)
	blockerAttempting := kernel.NewSemaphore(0)
	allDone := kernel.NewSemaphore(0)

	var blockerLockResult errno.Errno
	var ownerWaitResult errno.Errno

	owner := spawn(t, sched, p, "owner", 20, func() {
		require.Equal(t, errno.OK, m.Lock(sched))
		ownerLocked.Post(sched)
		require.Equal(t, errno.OK, ownerContinue.Wait(sched))

		ownerWaitResult = cv.Wait(sched, m)
		require.Equal(t, sched.Current(), m.Owner())
		require.Equal(t, errno.OK, m.Unlock(sched))
		allDone.Post(sched)
	})

	blocker := spawn(t, sched, p, "blocker", 10, func() {
		blockerAttempting.Post(sched)
		blockerLockResult = m.Lock(sched)
		require.Equal(t, errno.OK, m.Unlock(sched))
		cv.NotifyOne(sched)
	})

	require.Equal(t, errno.OK, ownerLocked.Wait(sched))
	require.Equal(t, errno.OK, blockerAttempting.Wait(sched))
	// blocker is now genuinely parked inside m.Lock's contended path, spliced
	// into m.waiters — confirmed by the handoff above only resuming main
	// once blocker's own blockCommon call has done exactly that.
	ownerContinue.Post(sched)

	require.Equal(t, errno.OK, allDone.Wait(sched))
	assert.Equal(t, errno.OK, ownerWaitResult)
	assert.Equal(t, errno.OK, blockerLockResult)
	assert.Equal(t, kernel.Terminated, owner.State())
	assert.Equal(t, kernel.Terminated, blocker.State())
}
