package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/23skdu/longbow-batchstream/internal/bench"
)

// Run is one benchmark invocation.
type Run struct {
	ID        string    `json:"id"`
	Backend   string    `json:"backend"`
	Model     string    `json:"model"`
	BatchSize int       `json:"batch_size"`
	Warmup    int       `json:"warmup"`
	Repeats   int       `json:"repeats"`
	StartedAt time.Time `json:"started_at"`
}

// QueueResult is the stored summary of one queue of a run. Latencies that
// were not finite (zero repeats) are stored as NULL and read back as NaN.
type QueueResult struct {
	RunID   string  `json:"run_id"`
	Seq     int     `json:"seq"`
	Queue   string  `json:"queue"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MinMs   float64 `json:"min_ms"`
	MaxMs   float64 `json:"max_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P99Ms   float64 `json:"p99_ms"`
}

// HistoryStore handles run persistence.
type HistoryStore struct {
	db *DB
}

func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// CreateRun inserts run, assigning an ID and start time when missing.
func (s *HistoryStore) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, backend, model, batch_size, warmup, repeats, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Backend, run.Model, run.BatchSize, run.Warmup, run.Repeats, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordResult appends the result of the seq-th queue of runID.
func (s *HistoryStore) RecordResult(ctx context.Context, runID string, seq int, r bench.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_results (run_id, seq, queue, total_ms, avg_ms, min_ms, max_ms, p50_ms, p99_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, seq, r.Queue, r.TotalMs,
		nullable(r.AvgMs), nullable(r.Stats.Min), nullable(r.Stats.Max), nullable(r.Stats.P50), nullable(r.Stats.P99))
	if err != nil {
		return fmt.Errorf("failed to record result for queue %s: %w", r.Queue, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *HistoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, backend, model, batch_size, warmup, repeats, started_at
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Backend, &run.Model, &run.BatchSize, &run.Warmup, &run.Repeats, &run.StartedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *HistoryStore) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backend, model, batch_size, warmup, repeats, started_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(&run.ID, &run.Backend, &run.Model, &run.BatchSize, &run.Warmup, &run.Repeats, &run.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Results returns the queue results of runID in execution order.
func (s *HistoryStore) Results(ctx context.Context, runID string) ([]QueueResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, queue, total_ms, avg_ms, min_ms, max_ms, p50_ms, p99_ms
		FROM queue_results WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []QueueResult
	for rows.Next() {
		var r QueueResult
		var avg, minv, maxv, p50, p99 sql.NullFloat64
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Queue, &r.TotalMs, &avg, &minv, &maxv, &p50, &p99); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.AvgMs, r.MinMs, r.MaxMs, r.P50Ms, r.P99Ms = orNaN(avg), orNaN(minv), orNaN(maxv), orNaN(p50), orNaN(p99)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
