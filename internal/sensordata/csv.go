package sensordata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/trajectory.report/internal/fusion"
)

// Column names of the combined IMU/GPS CSV schema.
const (
	ColTime   = "time"
	ColGPSX   = "gps_x"
	ColGPSY   = "gps_y"
	ColTruthX = "absolute_x"
	ColTruthY = "absolute_y"
	ColAccelX = "imu_acceleration_x"
	ColAccelY = "imu_acceleration_y"
)

// maxDatasetFileSize bounds LoadFile.
const maxDatasetFileSize = 64 * 1024 * 1024

// ReadCSV parses a combined IMU/GPS CSV. Columns are located by header
// name in any order; time, gps_x, gps_y, imu_acceleration_x and
// imu_acceleration_y are required, absolute_x/absolute_y are optional
// but must appear together. Rows are kept in file order.
func ReadCSV(r io.Reader) (*Dataset, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}

	var cols [5]int
	for i, name := range []string{ColTime, ColGPSX, ColGPSY, ColAccelX, ColAccelY} {
		if cols[i], err = t.require(name); err != nil {
			return nil, err
		}
	}
	truthX, truthY := t.col(ColTruthX), t.col(ColTruthY)
	if (truthX < 0) != (truthY < 0) {
		return nil, fmt.Errorf("columns %q and %q must be given together", ColTruthX, ColTruthY)
	}

	ds := &Dataset{Samples: make([]Sample, 0, len(t.rows))}
	for row := range t.rows {
		var v [5]float64
		for i, name := range []string{ColTime, ColGPSX, ColGPSY, ColAccelX, ColAccelY} {
			if v[i], err = t.float(row, cols[i], name); err != nil {
				return nil, err
			}
		}
		s := Sample{Measurement: fusion.Measurement{
			Timestamp:    v[0],
			Position:     fusion.Vec2{X: v[1], Y: v[2]},
			Acceleration: fusion.Vec2{X: v[3], Y: v[4]},
		}}
		if truthX >= 0 {
			x, err := t.float(row, truthX, ColTruthX)
			if err != nil {
				return nil, err
			}
			y, err := t.float(row, truthY, ColTruthY)
			if err != nil {
				return nil, err
			}
			s.Truth = &fusion.Vec2{X: x, Y: y}
		}
		ds.Samples = append(ds.Samples, s)
	}
	return ds, nil
}

// LoadFile reads a combined CSV from disk. The dataset is named after the
// file's base name without extension.
func LoadFile(path string) (*Dataset, error) {
	cleanPath := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(cleanPath)); ext != ".csv" {
		return nil, fmt.Errorf("dataset file must have .csv extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat dataset file: %w", err)
	}
	if info.Size() > maxDatasetFileSize {
		return nil, fmt.Errorf("dataset file too large: %d bytes (max %d)", info.Size(), maxDatasetFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cleanPath, err)
	}
	ds.Name = strings.TrimSuffix(filepath.Base(cleanPath), filepath.Ext(cleanPath))
	return ds, nil
}

// WriteCSV writes ds in the combined schema. The ground truth columns are
// written only when every sample has one.
func WriteCSV(w io.Writer, ds *Dataset) error {
	withTruth := ds.HasTruth()
	header := []string{ColTime, ColGPSX, ColGPSY}
	if withTruth {
		header = append(header, ColTruthX, ColTruthY)
	}
	header = append(header, ColAccelX, ColAccelY)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range ds.Samples {
		m := s.Measurement
		row := []string{formatFloat(m.Timestamp), formatFloat(m.Position.X), formatFloat(m.Position.Y)}
		if withTruth {
			row = append(row, formatFloat(s.Truth.X), formatFloat(s.Truth.Y))
		}
		row = append(row, formatFloat(m.Acceleration.X), formatFloat(m.Acceleration.Y))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrajectoryCSV writes a fused trajectory as time,est_x,est_y.
// timestamps and estimates must have the same length.
func WriteTrajectoryCSV(w io.Writer, timestamps []float64, estimates []fusion.Vec2) error {
	if len(timestamps) != len(estimates) {
		return fmt.Errorf("timestamp count %d does not match estimate count %d", len(timestamps), len(estimates))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColTime, "est_x", "est_y"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, p := range estimates {
		if err := cw.Write([]string{formatFloat(timestamps[i]), formatFloat(p.X), formatFloat(p.Y)}); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EstimateTimestamps returns the timestamps the runner's estimates belong
// to: every sample after the first.
func (d *Dataset) EstimateTimestamps() []float64 {
	if len(d.Samples) < 2 {
		return []float64{}
	}
	return d.Timestamps()[1:]
}
