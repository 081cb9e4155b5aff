package critical_test

import (
	"sync"
	"testing"
	"time"

	"github.com/csaszitoma/distortos-go/critical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardNestedEnterIsReentrantOnSameGoroutine(t *testing.T) {
	g := &critical.Guard{}

	outer := g.Enter()
	assert.Equal(t, 1, g.Depth())

	inner := g.Enter()
	assert.Equal(t, 2, g.Depth())

	inner.Exit()
	assert.Equal(t, 1, g.Depth())

	outer.Exit()
	assert.Equal(t, 0, g.Depth())
}

func TestGuardDeeplyNestedEntersUnwindInOrder(t *testing.T) {
	g := &critical.Guard{}

	var toks []critical.Token
	for i := 0; i < 5; i++ {
		toks = append(toks, g.Enter())
		assert.Equal(t, i+1, g.Depth())
	}
	for i := len(toks) - 1; i >= 0; i-- {
		toks[i].Exit()
		assert.Equal(t, i, g.Depth())
	}
}

// TestGuardExcludesOtherGoroutines confirms a second goroutine's Enter still
// genuinely blocks until the first goroutine's outermost Exit, even though
// the first goroutine's own nested Enter calls never block against
// themselves.
func TestGuardExcludesOtherGoroutines(t *testing.T) {
	g := &critical.Guard{}

	outer := g.Enter()
	inner := g.Enter() // same goroutine, must not block
	inner.Exit()

	entered := make(chan struct{})
	var mu sync.Mutex
	var order []string

	go func() {
		tok := g.Enter()
		mu.Lock()
		order = append(order, "other")
		mu.Unlock()
		tok.Exit()
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("other goroutine entered while the guard was still held")
	case <-time.After(20 * time.Millisecond):
	}

	mu.Lock()
	order = append(order, "owner")
	mu.Unlock()
	outer.Exit()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("other goroutine never entered after the guard was released")
	}

	require.Equal(t, []string{"owner", "other"}, order)
}
