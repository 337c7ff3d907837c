package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_RunsInEnqueueOrder(t *testing.T) {
	var q Queue
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		q.Enqueue(func() { got = append(got, i) })
	}
	q.Drain()
	assert.Equal(t, []int{1, 2, 3}, got)

	q.Drain()
	assert.Len(t, got, 3, "nothing runs twice")
}

func TestQueue_NestedEnqueueRunsAfterCurrent(t *testing.T) {
	var q Queue
	var got []string
	q.Enqueue(func() {
		got = append(got, "outer-start")
		q.Enqueue(func() { got = append(got, "nested") })
		q.Drain()
		got = append(got, "outer-end")
	})
	q.Enqueue(func() { got = append(got, "second") })

	q.Drain()
	assert.Equal(t, []string{"outer-start", "outer-end", "second", "nested"}, got)
}

func TestQueue_RecoversAfterPanic(t *testing.T) {
	var q Queue
	q.Enqueue(func() { panic("boom") })
	require.Panics(t, q.Drain)

	ran := false
	q.Enqueue(func() { ran = true })
	q.Drain()
	assert.True(t, ran)
}

func TestQueue_ConcurrentProducersLoseNothing(t *testing.T) {
	var q Queue
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
			q.Drain()
		}()
	}
	wg.Wait()
	q.Drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, count)
}
