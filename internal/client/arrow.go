package client

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-batchstream/internal/bench"
)

// RunInfo describes the invocation that produced a set of results.
type RunInfo struct {
	RunID     string
	Backend   string
	Model     string
	BatchSize int
}

// ResultSchema is the schema of record batches built by RecordBatchBuilder.
var ResultSchema = arrow.NewSchema(
	[]arrow.Field{
		{Name: "run_id", Type: arrow.BinaryTypes.String},
		{Name: "backend", Type: arrow.BinaryTypes.String},
		{Name: "model", Type: arrow.BinaryTypes.String},
		{Name: "batch_size", Type: arrow.PrimitiveTypes.Int32},
		{Name: "queue", Type: arrow.BinaryTypes.String},
		{Name: "warmup", Type: arrow.PrimitiveTypes.Int32},
		{Name: "repeats", Type: arrow.PrimitiveTypes.Int32},
		{Name: "total_ms", Type: arrow.PrimitiveTypes.Float64},
		{Name: "avg_ms", Type: arrow.PrimitiveTypes.Float64},
		{Name: "min_ms", Type: arrow.PrimitiveTypes.Float64},
		{Name: "max_ms", Type: arrow.PrimitiveTypes.Float64},
		{Name: "stddev_ms", Type: arrow.PrimitiveTypes.Float64},
		{Name: "p50_ms", Type: arrow.PrimitiveTypes.Float64},
		{Name: "p90_ms", Type: arrow.PrimitiveTypes.Float64},
		{Name: "p99_ms", Type: arrow.PrimitiveTypes.Float64},
		{Name: "output_shape", Type: arrow.ListOf(arrow.PrimitiveTypes.Int32)},
		{Name: "output", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)},
	},
	nil,
)

// RecordBatchBuilder creates Arrow RecordBatches from benchmark results.
type RecordBatchBuilder struct {
	mem memory.Allocator
}

// NewRecordBatchBuilder creates a new builder.
func NewRecordBatchBuilder(mem memory.Allocator) *RecordBatchBuilder {
	return &RecordBatchBuilder{mem: mem}
}

// BuildRecordBatch converts results into a RecordBatch with one row per queue.
// It returns nil for an empty input.
func (b *RecordBatchBuilder) BuildRecordBatch(info RunInfo, results []bench.Result) (arrow.RecordBatch, error) {
	if len(results) == 0 {
		return nil, nil
	}

	runID := array.NewStringBuilder(b.mem)
	backend := array.NewStringBuilder(b.mem)
	model := array.NewStringBuilder(b.mem)
	batch := array.NewInt32Builder(b.mem)
	queue := array.NewStringBuilder(b.mem)
	warmup := array.NewInt32Builder(b.mem)
	repeats := array.NewInt32Builder(b.mem)
	floats := make([]*array.Float64Builder, 8)
	for i := range floats {
		floats[i] = array.NewFloat64Builder(b.mem)
	}
	shapeList := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Int32)
	shapeValues := shapeList.ValueBuilder().(*array.Int32Builder)
	outList := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Float32)
	outValues := outList.ValueBuilder().(*array.Float32Builder)

	builders := []array.Builder{runID, backend, model, batch, queue, warmup, repeats}
	for _, f := range floats {
		builders = append(builders, f)
	}
	builders = append(builders, shapeList, outList)
	defer func() {
		for _, bld := range builders {
			bld.Release()
		}
	}()

	for _, r := range results {
		runID.Append(info.RunID)
		backend.Append(info.Backend)
		model.Append(info.Model)
		batch.Append(int32(info.BatchSize))
		queue.Append(r.Queue)
		warmup.Append(int32(r.Warmup))
		repeats.Append(int32(r.Repeats))

		vals := []float64{r.TotalMs, r.AvgMs, r.Stats.Min, r.Stats.Max, r.Stats.StdDev, r.Stats.P50, r.Stats.P90, r.Stats.P99}
		for i, v := range vals {
			floats[i].Append(v)
		}

		shapeList.Append(true)
		for _, d := range r.OutputShape {
			shapeValues.Append(int32(d))
		}
		outList.Append(true)
		outValues.AppendValues(r.Output, nil)
	}

	cols := make([]arrow.Array, len(builders))
	for i, bld := range builders {
		cols[i] = bld.NewArray()
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	if len(cols) != len(ResultSchema.Fields()) {
		return nil, fmt.Errorf("built %d columns for %d fields", len(cols), len(ResultSchema.Fields()))
	}
	return array.NewRecordBatch(ResultSchema, cols, int64(len(results))), nil
}

// WriteArrowStream writes rec to w in the Arrow IPC stream format.
func WriteArrowStream(w io.Writer, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
