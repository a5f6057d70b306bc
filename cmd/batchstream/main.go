package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-batchstream/internal/bench"
	"github.com/23skdu/longbow-batchstream/internal/config"
	"github.com/23skdu/longbow-batchstream/internal/device"
	"github.com/23skdu/longbow-batchstream/internal/engine"
)

func setupLogging(cfg config.Config, w io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(cfg.Level())
	if cfg.LogFormat == config.LogFormatJSON {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func main() {
	os.Exit(realMain(os.Args, os.Stdout, os.Stderr))
}

// realMain returns the process exit code. Deferred flushes (profile, traces)
// run before the caller exits.
func realMain(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Parse(args[0], args[1:], stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	setupLogging(cfg, stderr)

	if cfg.EnableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize tracer")
			return 1
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
	}

	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create CPU profile file")
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Error().Err(err).Msg("Could not start CPU profile")
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsListen != "" {
		srv := newMetricsServer(cfg.MetricsListen)
		g.Go(func() error { return serveMetrics(gctx, srv) })
	}
	g.Go(func() error {
		defer cancel()
		return run(gctx, cfg, stdout)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Benchmark failed")
		return 1
	}
	return 0
}

// run benchmarks every queue against a single predictor and exports results.
func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	rt, err := device.Open(cfg.DeviceKind(), cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("open %s runtime: %w", cfg.DeviceKind(), err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close device runtime")
		}
	}()

	defaultQueue, err := rt.NewQueue()
	if err != nil {
		return fmt.Errorf("create default queue: %w", err)
	}

	p, err := newPredictor(cfg, defaultQueue)
	if err != nil {
		return err
	}
	defer p.Close()

	input, shape := bench.SynthesizeInput(cfg.BatchSize)

	queues := make([]device.Queue, 0, cfg.QueueCount)
	for i := 0; i < cfg.QueueCount; i++ {
		q, err := rt.NewQueue()
		if err != nil {
			return fmt.Errorf("create queue %d: %w", i, err)
		}
		queues = append(queues, q)
	}

	log.Info().
		Str("backend", cfg.Backend).
		Str("runtime", rt.Name()).
		Ints("input_shape", shape).
		Int("queues", len(queues)).
		Int("warmup", cfg.Warmup).
		Int("repeats", cfg.Repeats).
		Msg("Starting benchmark")

	sink, err := newResultSink(ctx, cfg, out)
	if err != nil {
		return fmt.Errorf("result sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close result sink")
		}
	}()

	results, err := bench.RunAll(ctx, p, input, shape, queues, cfg.Warmup, cfg.Repeats, func(r bench.Result) {
		sink.publish(ctx, r)
	})
	if err != nil {
		return err
	}

	// Keep stdout clean when it carries the Arrow stream.
	summaryOut := out
	if cfg.ReportPath == "-" {
		summaryOut = os.Stderr
	}
	printSummary(summaryOut, results)

	if err := sink.writeReport(results); err != nil {
		return fmt.Errorf("write report %s: %w", cfg.ReportPath, err)
	}
	return nil
}

// newPredictor configures the engine the same way for every backend: the
// model file pair is applied after model_dir, so a file pair wins.
func newPredictor(cfg config.Config, q device.Queue) (engine.Predictor, error) {
	ecfg := engine.NewConfig(cfg.Backend)
	if cfg.ModelDir != "" {
		ecfg.SetModelDir(cfg.ModelDir)
	}
	ecfg.SetModel(cfg.ModelFile, cfg.ParamsFile)
	if cfg.ModelSuperseded() {
		log.Warn().
			Str("model_dir", cfg.ModelDir).
			Str("model_file", cfg.ModelFile).
			Msg("model_dir is superseded by model_file")
	}
	ecfg.EnableUseGPU(uint64(cfg.GPUMemoryMB), cfg.DeviceID)
	ecfg.SetExecQueue(q)
	ecfg.EnableMemoryOptim()

	p, err := engine.New(ecfg)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownBackend) {
			return nil, fmt.Errorf("%w (is the binary built with -tags %s?)", err, cfg.Backend)
		}
		return nil, err
	}
	return p, nil
}
