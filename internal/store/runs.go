package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trajectory.report/internal/evaluation"
	"github.com/banshee-data/trajectory.report/internal/fusion"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one archived execution of the fusion runner over a dataset.
type Run struct {
	ID            string              `json:"id"`
	DatasetID     string              `json:"dataset_id"`
	Params        fusion.Params       `json:"params"`
	Status        string              `json:"status"`
	Error         string              `json:"error,omitempty"`
	EstimateCount int                 `json:"estimate_count"`
	InnovationRMS float64             `json:"innovation_rms"`
	Metrics       *evaluation.Metrics `json:"metrics,omitempty"`
	Duration      time.Duration       `json:"duration_ns"`
	CreatedAt     time.Time           `json:"created_at"`
}

// SaveRun archives run and its estimates in one transaction. An empty
// run.ID is replaced with a fresh UUID; CreatedAt is stamped from the
// store clock. The stored id is returned.
func (s *Store) SaveRun(ctx context.Context, run *Run, estimates []fusion.Step) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = StatusCompleted
	}
	run.CreatedAt = s.clock.Now().UTC().Truncate(time.Second)
	run.EstimateCount = len(estimates)

	var mae, rmse, maxErr, rawMAE, rawRMSE, improvement sql.NullFloat64
	if m := run.Metrics; m != nil {
		mae = sql.NullFloat64{Float64: m.MAE, Valid: true}
		rmse = sql.NullFloat64{Float64: m.RMSE, Valid: true}
		maxErr = sql.NullFloat64{Float64: m.MaxError, Valid: true}
		rawMAE = sql.NullFloat64{Float64: m.RawMAE, Valid: true}
		rawRMSE = sql.NullFloat64{Float64: m.RawRMSE, Valid: true}
		improvement = sql.NullFloat64{Float64: m.Improvement, Valid: true}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (run_id, dataset_id, process_variance, measurement_variance, status, error,
			     estimate_count, innovation_rms, mae, rmse, max_error, raw_mae, raw_rmse, improvement,
			     duration_ms, created_unix)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.DatasetID, run.Params.ProcessVariance, run.Params.MeasurementVariance,
			run.Status, run.Error, run.EstimateCount, run.InnovationRMS,
			mae, rmse, maxErr, rawMAE, rawRMSE, improvement,
			run.Duration.Milliseconds(), run.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO estimates (run_id, idx, time, x, y, vx, vy) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, st := range estimates {
			if _, err := stmt.ExecContext(ctx, run.ID, st.Index, st.Timestamp,
				st.Position.X, st.Position.Y, st.Velocity.X, st.Velocity.Y); err != nil {
				return fmt.Errorf("insert estimate %d: %w", st.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

const runColumns = `run_id, dataset_id, process_variance, measurement_variance, status, error,
	estimate_count, innovation_rms, mae, rmse, max_error, raw_mae, raw_rmse, improvement,
	duration_ms, created_unix`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var mae, rmse, maxErr, rawMAE, rawRMSE, improvement sql.NullFloat64
	var durationMS, created int64
	if err := sc.Scan(&r.ID, &r.DatasetID, &r.Params.ProcessVariance, &r.Params.MeasurementVariance,
		&r.Status, &r.Error, &r.EstimateCount, &r.InnovationRMS,
		&mae, &rmse, &maxErr, &rawMAE, &rawRMSE, &improvement,
		&durationMS, &created); err != nil {
		return Run{}, err
	}
	if mae.Valid {
		r.Metrics = &evaluation.Metrics{
			Count:       r.EstimateCount,
			MAE:         mae.Float64,
			RMSE:        rmse.Float64,
			MaxError:    maxErr.Float64,
			RawMAE:      rawMAE.Float64,
			RawRMSE:     rawRMSE.Float64,
			Improvement: improvement.Float64,
		}
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.CreatedAt = time.Unix(created, 0).UTC()
	return r, nil
}

// GetRun returns one archived run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns runs newest first. An empty datasetID lists every run.
func (s *Store) ListRuns(ctx context.Context, datasetID string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if datasetID != "" {
		query += ` WHERE dataset_id = ?`
		args = append(args, datasetID)
	}
	query += ` ORDER BY created_unix DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunEstimates returns the archived trajectory of a run in record order.
// Innovation and variance are not archived and come back zero.
func (s *Store) RunEstimates(ctx context.Context, runID string) ([]fusion.Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, time, x, y, vx, vy FROM estimates WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fusion.Step
	for rows.Next() {
		var st fusion.Step
		if err := rows.Scan(&st.Index, &st.Timestamp, &st.Position.X, &st.Position.Y,
			&st.Velocity.X, &st.Velocity.Y); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
