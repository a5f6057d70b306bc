package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-batchstream/internal/bench"
	"github.com/23skdu/longbow-batchstream/internal/client"
	"github.com/23skdu/longbow-batchstream/internal/config"
	"github.com/23skdu/longbow-batchstream/internal/storage"
)

const (
	publishTimeout     = 30 * time.Second
	breakerMaxFailures = 3
	breakerCooldown    = 30 * time.Second
)

func modelName(cfg config.Config) string {
	if cfg.ModelFile != "" {
		return cfg.ModelFile
	}
	return filepath.Clean(cfg.ModelDir)
}

// resultSink publishes each queue's result as it completes and writes the
// combined Arrow report at the end.
type resultSink struct {
	info       client.RunInfo
	builder    *client.RecordBatchBuilder
	publisher  *client.Publisher
	db         *storage.DB
	history    *storage.HistoryStore
	seq        int
	reportPath string
	stdout     io.Writer
}

func newResultSink(ctx context.Context, cfg config.Config, stdout io.Writer) (*resultSink, error) {
	s := &resultSink{
		info: client.RunInfo{
			RunID:     uuid.New().String(),
			Backend:   cfg.Backend,
			Model:     modelName(cfg),
			BatchSize: cfg.BatchSize,
		},
		builder:    client.NewRecordBatchBuilder(memory.NewGoAllocator()),
		reportPath: cfg.ReportPath,
		stdout:     stdout,
	}
	if cfg.HistoryPath != "" {
		if err := s.openHistory(ctx, cfg); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open history %s: %w", cfg.HistoryPath, err)
		}
	}
	if cfg.ServerAddr != "" {
		fc, err := client.NewFlightClient(cfg.ServerAddr)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.publisher = client.NewPublisher(fc, cfg.Dataset, client.NewCircuitBreaker(breakerMaxFailures, breakerCooldown))
		log.Info().Str("server", cfg.ServerAddr).Str("dataset", cfg.Dataset).Msg("Publishing results to Longbow")
	}
	return s, nil
}

func (s *resultSink) openHistory(ctx context.Context, cfg config.Config) error {
	db, err := storage.New(cfg.HistoryPath)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	s.history = storage.NewHistoryStore(db)

	run := &storage.Run{
		ID:        s.info.RunID,
		Backend:   cfg.Backend,
		Model:     s.info.Model,
		BatchSize: cfg.BatchSize,
		Warmup:    cfg.Warmup,
		Repeats:   cfg.Repeats,
	}
	if err := s.history.CreateRun(ctx, run); err != nil {
		return err
	}
	log.Info().Str("path", cfg.HistoryPath).Str("run_id", run.ID).Msg("Recording run history")
	return nil
}

// publish records and sends one result. Failures are logged and never abort
// the benchmark.
func (s *resultSink) publish(ctx context.Context, r bench.Result) {
	seq := s.seq
	s.seq++
	if s.history != nil {
		if err := s.history.RecordResult(ctx, s.info.RunID, seq, r); err != nil {
			log.Warn().Err(err).Str("queue", r.Queue).Msg("Failed to record history")
		}
	}
	if s.publisher == nil {
		return
	}
	rec, err := s.builder.BuildRecordBatch(s.info, []bench.Result{r})
	if err != nil || rec == nil {
		log.Warn().Err(err).Str("queue", r.Queue).Msg("Failed to build result batch")
		return
	}
	defer rec.Release()

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_ = s.publisher.Publish(pctx, rec)
}

// writeReport writes all results as one Arrow IPC stream.
func (s *resultSink) writeReport(results []bench.Result) error {
	if s.reportPath == "" {
		return nil
	}
	rec, err := s.builder.BuildRecordBatch(s.info, results)
	if err != nil {
		return fmt.Errorf("build result batch: %w", err)
	}
	if rec == nil {
		log.Warn().Msg("No results to report")
		return nil
	}
	defer rec.Release()

	if s.reportPath == "-" {
		return client.WriteArrowStream(s.stdout, rec)
	}
	f, err := os.Create(s.reportPath)
	if err != nil {
		return err
	}
	if err := client.WriteArrowStream(f, rec); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info().Str("path", s.reportPath).Int64("rows", rec.NumRows()).Msg("Wrote Arrow report")
	return nil
}

func (s *resultSink) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
