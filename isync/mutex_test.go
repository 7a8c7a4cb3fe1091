package isync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexTryLockFailsWhenHeld(t *testing.T) {
	m := NewMutex(0)
	g, ok := m.TryLock(1)
	require.True(t, ok)

	_, ok2 := m.TryLock(2)
	assert.False(t, ok2)

	g.Unlock()

	g3, ok3 := m.TryLock(2)
	require.True(t, ok3)
	g3.Unlock()
}

func TestMutexGrantsEachQueuedWaiterExactlyOnce(t *testing.T) {
	m := NewMutex(0)
	const n = 20

	first := m.Lock(0) // thread 0 holds it while everyone else queues up

	var mu sync.Mutex
	var order []int
	var starters sync.WaitGroup
	var finishers sync.WaitGroup
	starters.Add(n)
	finishers.Add(n)

	for i := 1; i <= n; i++ {
		go func(id ThreadID) {
			starters.Done()
			starters.Wait() // maximize contention on the waitlist
			g := m.Lock(id)
			mu.Lock()
			order = append(order, int(id))
			mu.Unlock()
			g.Unlock()
			finishers.Done()
		}(ThreadID(i))
	}

	starters.Wait()
	first.Unlock()
	finishers.Wait()

	require.Len(t, order, n)
	seen := make(map[int]bool, n)
	for _, id := range order {
		assert.False(t, seen[id], "thread %d acquired the mutex twice", id)
		seen[id] = true
	}
}

func TestMutexValueIsSharedAcrossLockers(t *testing.T) {
	m := NewMutex(0)
	const n = 100
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id ThreadID) {
			defer wg.Done()
			g := m.Lock(id)
			*g.Value()++
			g.Unlock()
		}(ThreadID(i))
	}
	wg.Wait()

	g := m.Lock(9999)
	defer g.Unlock()
	assert.Equal(t, n, *g.Value())
}

func TestMutexDestroyFlagsOutstandingWaiters(t *testing.T) {
	m := NewMutex(0)
	g := m.Lock(1)

	go func() {
		g2 := m.Lock(2)
		g2.Unlock()
	}()

	// Give the second thread a chance to enqueue before we inspect state.
	for {
		wl := m.waitList.WaitForLock(1)
		empty := wl.Value().Front() == nil
		wl.Unlock()
		if !empty {
			break
		}
		time.Sleep(time.Millisecond)
	}

	m.Destroy(1) // logs an illegal-use diagnostic; must not panic
	g.Unlock()
}
