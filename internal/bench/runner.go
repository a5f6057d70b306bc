// Package bench drives warm-up and timed inference passes over execution
// queues and reports per-queue latency.
package bench

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-batchstream/internal/device"
	"github.com/23skdu/longbow-batchstream/internal/engine"
	"github.com/23skdu/longbow-batchstream/internal/timer"
)

var (
	// ErrShapeMismatch is returned when the input length differs from the product of its shape.
	ErrShapeMismatch = errors.New("bench: input length does not match shape")
	// ErrNoInputs is returned for models that declare no input slot.
	ErrNoInputs = errors.New("bench: model has no inputs")
	// ErrNoOutputs is returned for models that declare no output slot.
	ErrNoOutputs = errors.New("bench: model has no outputs")
)

var tracer = otel.Tracer("batchstream-bench")

// Result is the outcome of one benchmark run on one queue.
type Result struct {
	Queue   string `json:"queue"`
	Warmup  int    `json:"warmup"`
	Repeats int    `json:"repeats"`

	// TotalMs is the wall time of the timed loop; AvgMs is TotalMs/Repeats.
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	Stats   Stats   `json:"stats"`

	// Samples holds each timed iteration's latency in milliseconds.
	Samples []float64 `json:"-"`

	// Output and OutputShape come from the last timed pass.
	OutputShape []int     `json:"output_shape"`
	Output      []float32 `json:"-"`
}

func queueName(q device.Queue) string {
	if q == nil {
		return "<nil>"
	}
	return q.String()
}

// Run binds input to the first input slot of p, executes warmup untimed
// passes and repeats timed passes on q, and copies the first output back to
// the host after every timed pass. A zero repeats yields a non-finite average.
func Run(ctx context.Context, p engine.Predictor, input []float32, shape []int, q device.Queue, warmup, repeats int) (Result, error) {
	ctx, span := tracer.Start(ctx, "bench.Run", trace.WithAttributes(
		attribute.String("queue", queueName(q)),
		attribute.Int("warmup", warmup),
		attribute.Int("repeats", repeats),
		attribute.IntSlice("input_shape", shape),
	))
	defer span.End()

	res, err := run(ctx, p, input, shape, q, warmup, repeats)
	if err != nil {
		runFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Float64("avg_ms", res.AvgMs))
	return res, nil
}

func run(ctx context.Context, p engine.Predictor, input []float32, shape []int, q device.Queue, warmup, repeats int) (Result, error) {
	res := Result{Queue: queueName(q), Warmup: warmup, Repeats: repeats}

	if n := engine.NumElements(shape); len(input) != n {
		return res, fmt.Errorf("%w: %d values for shape %v (%d elements)", ErrShapeMismatch, len(input), shape, n)
	}

	inNames := p.InputNames()
	if len(inNames) == 0 {
		return res, ErrNoInputs
	}
	outNames := p.OutputNames()
	if len(outNames) == 0 {
		return res, ErrNoOutputs
	}

	in, err := p.InputHandle(inNames[0])
	if err != nil {
		return res, err
	}
	if err := in.Reshape(shape); err != nil {
		return res, fmt.Errorf("reshape %s: %w", inNames[0], err)
	}
	if err := in.CopyFromHost(input); err != nil {
		return res, fmt.Errorf("copy input %s: %w", inNames[0], err)
	}

	for i := 0; i < warmup; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := p.RunWithQueue(q); err != nil {
			return res, fmt.Errorf("warmup pass %d on %s: %w", i, res.Queue, err)
		}
		iterationsTotal.WithLabelValues(phaseWarmup).Inc()
	}

	hist := iterationDuration.WithLabelValues(res.Queue)
	samples := make([]float64, 0, repeats)
	var out []float32
	var outShape []int

	start := timer.Now()
	for i := 0; i < repeats; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		iterStart := timer.Now()

		if err := p.RunWithQueue(q); err != nil {
			return res, fmt.Errorf("timed pass %d on %s: %w", i, res.Queue, err)
		}
		outT, err := p.OutputHandle(outNames[0])
		if err != nil {
			return res, err
		}
		outShape = outT.Shape()
		n := engine.NumElements(outShape)
		if cap(out) >= n {
			out = out[:n]
		} else {
			out = make([]float32, n)
		}
		if err := outT.CopyToHost(out); err != nil {
			return res, fmt.Errorf("copy output %s: %w", outNames[0], err)
		}

		ms := timer.Since(iterStart)
		samples = append(samples, ms)
		hist.Observe(ms / 1000.0)
		iterationsTotal.WithLabelValues(phaseTimed).Inc()
	}
	total := timer.Since(start)

	res.TotalMs = total
	res.AvgMs = total / float64(repeats)
	res.Samples = samples
	res.Stats = Summarize(samples)
	res.Output = out
	res.OutputShape = outShape

	if repeats > 0 {
		avgLatency.WithLabelValues(res.Queue).Set(res.AvgMs)
	}

	log.Info().
		Float64("avg_ms", res.AvgMs).
		Str("stream", queueName(p.ExecQueue())).
		Int("repeats", repeats).
		Msgf("run avg time is %.3f ms", res.AvgMs)
	return res, nil
}

// RunAll runs the benchmark on each queue in order against the same
// predictor. Runs never overlap. onResult, if non-nil, is called after each
// successful run. On error the results gathered so far are returned.
func RunAll(ctx context.Context, p engine.Predictor, input []float32, shape []int, queues []device.Queue, warmup, repeats int, onResult func(Result)) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "bench.RunAll", trace.WithAttributes(attribute.Int("queues", len(queues))))
	defer span.End()

	results := make([]Result, 0, len(queues))
	for i, q := range queues {
		res, err := Run(ctx, p, input, shape, q, warmup, repeats)
		if err != nil {
			return results, fmt.Errorf("queue %d (%s): %w", i, queueName(q), err)
		}
		results = append(results, res)
		if onResult != nil {
			onResult(res)
		}
	}
	return results, nil
}
