package device

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostQueue_FIFO(t *testing.T) {
	rt := NewHostRuntime()
	defer rt.Close()

	q, err := rt.NewQueue()
	require.NoError(t, err)
	sub := q.(Submitter)

	var mu sync.Mutex
	var order []int
	var last <-chan struct{}
	for i := 0; i < 100; i++ {
		i := i
		last, err = sub.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	<-last

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v, "work ran out of submission order")
	}
}

func TestHostQueue_Synchronize(t *testing.T) {
	rt := NewHostRuntime()
	defer rt.Close()

	q, err := rt.NewQueue()
	require.NoError(t, err)

	ran := false
	_, err = q.(Submitter).Submit(func() { ran = true })
	require.NoError(t, err)
	require.NoError(t, q.Synchronize())
	assert.True(t, ran)
}

func TestHostQueue_Close(t *testing.T) {
	rt := NewHostRuntime()

	q, err := rt.NewQueue()
	require.NoError(t, err)

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Close(), ErrQueueClosed)

	_, err = q.(Submitter).Submit(func() {})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Synchronize(), ErrQueueClosed)

	// Runtime close skips queues that are already closed
	assert.NoError(t, rt.Close())
}

func TestHostRuntime_IndependentQueues(t *testing.T) {
	rt := NewHostRuntime()
	defer rt.Close()

	before := testutil.ToFloat64(queuesCreated.WithLabelValues(RuntimeHost))

	seen := make(map[uint64]bool)
	for i := 0; i < 4; i++ {
		q, err := rt.NewQueue()
		require.NoError(t, err)
		assert.False(t, seen[q.ID()], "queue id reused")
		seen[q.ID()] = true
	}

	after := testutil.ToFloat64(queuesCreated.WithLabelValues(RuntimeHost))
	assert.Equal(t, 4.0, after-before)
}

func TestOpen(t *testing.T) {
	rt, err := Open(RuntimeHost, 0)
	require.NoError(t, err)
	assert.Equal(t, RuntimeHost, rt.Name())
	require.NoError(t, rt.Close())

	_, err = Open("tpu", 0)
	assert.Error(t, err)
}
