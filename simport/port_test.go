package simport_test

import (
	"testing"
	"time"

	"github.com/csaszitoma/distortos-go/kernel"
	"github.com/csaszitoma/distortos-go/simport"
	"github.com/stretchr/testify/require"
)

func TestInitializeStackParksEntryUntilFirstResume(t *testing.T) {
	p := simport.New()
	tcb := kernel.NewTCB("x", 10, kernel.FIFO, kernel.StackDescriptor{}, nil)

	ran := make(chan struct{}, 1)
	sp := p.InitializeStack(nil, func() { ran <- struct{}{} })
	p.Bind(sp, tcb)

	select {
	case <-ran:
		t.Fatal("entry ran before any resume")
	case <-time.After(20 * time.Millisecond):
	}

	p.Resume(tcb)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("entry never ran after Resume")
	}
}

// TestRequestFunctionExecutionRunsBeforeEntry confirms the pending
// trampoline fires on the TCB's own goroutine strictly before its entry
// point, on the very first resume.
func TestRequestFunctionExecutionRunsBeforeEntry(t *testing.T) {
	p := simport.New()
	tcb := kernel.NewTCB("x", 10, kernel.FIFO, kernel.StackDescriptor{}, nil)

	var order []string
	done := make(chan struct{}, 1)
	sp := p.InitializeStack(nil, func() {
		order = append(order, "entry")
		done <- struct{}{}
	})
	p.Bind(sp, tcb)

	p.RequestFunctionExecution(tcb, func() { order = append(order, "trampoline") })
	p.Resume(tcb)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("entry never ran")
	}
	require.Equal(t, []string{"trampoline", "entry"}, order)
}

// TestContextSwitchRoundTripParksAndResumes exercises a bare ping-pong
// handoff between two TCBs with no kernel.Scheduler involved: a switches to
// b, parking itself, then b switches back to a, which must resume exactly
// where it left off.
func TestContextSwitchRoundTripParksAndResumes(t *testing.T) {
	p := simport.New()
	a := kernel.NewTCB("a", 10, kernel.FIFO, kernel.StackDescriptor{}, nil)
	b := kernel.NewTCB("b", 10, kernel.FIFO, kernel.StackDescriptor{}, nil)

	order := make(chan string, 3)

	spA := p.InitializeStack(nil, func() {
		order <- "a1"
		p.ContextSwitch(a, b)
		order <- "a2"
	})
	p.Bind(spA, a)

	spB := p.InitializeStack(nil, func() {
		order <- "b1"
		p.ContextSwitch(b, a)
	})
	p.Bind(spB, b)

	p.ContextSwitch(nil, a)

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case s := <-order:
			got = append(got, s)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for step %d, got %v so far", i, got)
		}
	}
	require.Equal(t, []string{"a1", "b1", "a2"}, got)
}
