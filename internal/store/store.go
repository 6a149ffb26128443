// Package store archives datasets and fusion runs in sqlite. Filter state
// is never persisted; a run is reproducible from its dataset and params.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/sensordata"
	"github.com/banshee-data/trajectory.report/internal/timeutil"
)

// ErrNotFound is returned when a dataset or run id is unknown.
var ErrNotFound = errors.New("not found")

// Store is a migrated sqlite archive.
type Store struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp rows.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// Open opens (creating if needed) the sqlite database at path and applies
// all pending migrations. Use ":memory:" for a throwaway archive.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases and per-connection pragmas
	// consistent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for admin tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// DatasetInfo describes an archived dataset.
type DatasetInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Source      string    `json:"source,omitempty"`
	SampleCount int       `json:"sample_count"`
	HasTruth    bool      `json:"has_truth"`
	CreatedAt   time.Time `json:"created_at"`
}

// Fingerprint is a hex sha256 over every sample's values, in order.
// Datasets with equal fingerprints fuse identically.
func Fingerprint(ds *sensordata.Dataset) string {
	h := sha256.New()
	var buf [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, smp := range ds.Samples {
		m := smp.Measurement
		put(m.Timestamp)
		put(m.Position.X)
		put(m.Position.Y)
		put(m.Acceleration.X)
		put(m.Acceleration.Y)
		if smp.Truth != nil {
			h.Write([]byte{1})
			put(smp.Truth.X)
			put(smp.Truth.Y)
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FindDataset returns the id of an archived dataset with the same name,
// source and samples as ds, or ErrNotFound.
func (s *Store) FindDataset(ctx context.Context, ds *sensordata.Dataset, source string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT dataset_id FROM datasets
		 WHERE name = ? AND source = ? AND fingerprint = ? AND sample_count = ?
		 ORDER BY created_unix DESC, rowid DESC LIMIT 1`,
		ds.Name, source, Fingerprint(ds), ds.Len()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("dataset %s: %w", ds.Name, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// EnsureDataset returns the id of a matching archived dataset, archiving ds
// only when none exists. created reports whether a new dataset was stored.
func (s *Store) EnsureDataset(ctx context.Context, ds *sensordata.Dataset, source string) (id string, created bool, err error) {
	id, err = s.FindDataset(ctx, ds, source)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}
	id, err = s.SaveDataset(ctx, ds, source)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// SaveDataset archives every sample of ds and returns the new dataset id.
// It always inserts; use EnsureDataset to reuse an identical dataset.
func (s *Store) SaveDataset(ctx context.Context, ds *sensordata.Dataset, source string) (string, error) {
	id := uuid.NewString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO datasets (dataset_id, name, source, fingerprint, sample_count, has_truth, created_unix)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, ds.Name, source, Fingerprint(ds), ds.Len(), ds.HasTruth(), s.clock.Now().Unix()); err != nil {
			return fmt.Errorf("insert dataset: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO samples (dataset_id, idx, time, gps_x, gps_y, accel_x, accel_y, truth_x, truth_y)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, smp := range ds.Samples {
			m := smp.Measurement
			var truthX, truthY sql.NullFloat64
			if smp.Truth != nil {
				truthX = sql.NullFloat64{Float64: smp.Truth.X, Valid: true}
				truthY = sql.NullFloat64{Float64: smp.Truth.Y, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, id, i, m.Timestamp,
				m.Position.X, m.Position.Y, m.Acceleration.X, m.Acceleration.Y, truthX, truthY); err != nil {
				return fmt.Errorf("insert sample %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// LoadDataset rebuilds an archived dataset in its original sample order.
func (s *Store) LoadDataset(ctx context.Context, id string) (*sensordata.Dataset, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM datasets WHERE dataset_id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT time, gps_x, gps_y, accel_x, accel_y, truth_x, truth_y
		 FROM samples WHERE dataset_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ds := &sensordata.Dataset{Name: name}
	for rows.Next() {
		var smp sensordata.Sample
		var truthX, truthY sql.NullFloat64
		m := &smp.Measurement
		if err := rows.Scan(&m.Timestamp, &m.Position.X, &m.Position.Y,
			&m.Acceleration.X, &m.Acceleration.Y, &truthX, &truthY); err != nil {
			return nil, err
		}
		if truthX.Valid && truthY.Valid {
			smp.Truth = &fusion.Vec2{X: truthX.Float64, Y: truthY.Float64}
		}
		ds.Samples = append(ds.Samples, smp)
	}
	return ds, rows.Err()
}

// ListDatasets returns archived datasets, newest first.
func (s *Store) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, name, source, sample_count, has_truth, created_unix
		 FROM datasets ORDER BY created_unix DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DatasetInfo
	for rows.Next() {
		var d DatasetInfo
		var created int64
		if err := rows.Scan(&d.ID, &d.Name, &d.Source, &d.SampleCount, &d.HasTruth, &created); err != nil {
			return nil, err
		}
		d.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
