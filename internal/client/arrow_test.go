package client

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-batchstream/internal/bench"
)

func sampleResults() []bench.Result {
	return []bench.Result{
		{
			Queue: "host-queue-2", Warmup: 1, Repeats: 3,
			TotalMs: 3.0, AvgMs: 1.0,
			Stats:       bench.Stats{Min: 0.5, Max: 1.5, P50: 1.0, P90: 1.5, P99: 1.5, StdDev: 0.5},
			OutputShape: []int{1, 3},
			Output:      []float32{0.2, 0.3, 0.5},
		},
		{
			Queue: "host-queue-3", Warmup: 1, Repeats: 3,
			TotalMs: 6.0, AvgMs: 2.0,
			OutputShape: []int{1, 2},
			Output:      []float32{0.9, 0.1},
		},
	}
}

func TestBuildRecordBatch(t *testing.T) {
	pool := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer pool.AssertSize(t, 0)
	builder := NewRecordBatchBuilder(pool)
	info := RunInfo{RunID: "run-1", Backend: "cpu", Model: "ref", BatchSize: 1}

	t.Run("Empty input", func(t *testing.T) {
		rb, err := builder.BuildRecordBatch(info, nil)
		assert.NoError(t, err)
		assert.Nil(t, rb)
	})

	t.Run("Valid input", func(t *testing.T) {
		rb, err := builder.BuildRecordBatch(info, sampleResults())
		require.NoError(t, err)
		require.NotNil(t, rb)
		defer rb.Release()

		assert.Equal(t, int64(2), rb.NumRows())
		assert.Equal(t, int64(len(ResultSchema.Fields())), rb.NumCols())
		assert.Equal(t, "queue", rb.ColumnName(4))

		runIDs := rb.Column(0).(*array.String)
		assert.Equal(t, "run-1", runIDs.Value(1))

		queues := rb.Column(4).(*array.String)
		assert.Equal(t, "host-queue-2", queues.Value(0))
		assert.Equal(t, "host-queue-3", queues.Value(1))

		avg := rb.Column(8).(*array.Float64)
		assert.Equal(t, 1.0, avg.Value(0))
		assert.Equal(t, 2.0, avg.Value(1))

		backend := rb.Column(1).(*array.String)
		assert.Equal(t, "cpu", backend.Value(1))

		out := rb.Column(16).(*array.List)
		assert.Equal(t, []int32{0, 3, 5}, out.Offsets())
		values := out.ListValues().(*array.Float32)
		assert.Equal(t, float32(0.5), values.Value(2))
		assert.Equal(t, float32(0.1), values.Value(4))

		shape := rb.Column(15).(*array.List)
		dims := shape.ListValues().(*array.Int32)
		assert.Equal(t, int32(3), dims.Value(1))
	})
}

func TestWriteArrowStream(t *testing.T) {
	pool := memory.NewGoAllocator()
	rb, err := NewRecordBatchBuilder(pool).BuildRecordBatch(RunInfo{Backend: "cpu"}, sampleResults())
	require.NoError(t, err)
	defer rb.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteArrowStream(&buf, rb))

	reader, err := ipc.NewReader(&buf, ipc.WithAllocator(pool))
	require.NoError(t, err)
	defer reader.Release()

	require.Len(t, reader.Schema().Fields(), len(ResultSchema.Fields()))
	assert.Equal(t, "p99_ms", reader.Schema().Field(14).Name)
	require.True(t, reader.Next())
	got := reader.Record()
	assert.Equal(t, int64(2), got.NumRows())
	assert.Equal(t, "host-queue-3", got.Column(4).(*array.String).Value(1))
	assert.False(t, reader.Next())
}
