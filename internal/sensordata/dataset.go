// Package sensordata is the measurement source and sink for the fusion
// runner: it reads combined IMU/GPS records from CSV, aligns separate IMU
// and GPS streams into combined records, and writes datasets and
// trajectory estimates back out.
package sensordata

import (
	"fmt"

	"github.com/banshee-data/trajectory.report/internal/fusion"
)

// Sample is one combined record plus its optional ground truth position.
type Sample struct {
	Measurement fusion.Measurement
	Truth       *fusion.Vec2 // nil when the source has no absolute position
}

// Dataset is an ordered series of samples from one source.
type Dataset struct {
	Name    string
	Samples []Sample
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Samples)
}

// Measurements returns the samples as fusion records, in order.
func (d *Dataset) Measurements() []fusion.Measurement {
	out := make([]fusion.Measurement, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Measurement
	}
	return out
}

// Timestamps returns every sample timestamp, in order.
func (d *Dataset) Timestamps() []float64 {
	out := make([]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Measurement.Timestamp
	}
	return out
}

// RawPositions returns the GPS positions, in order.
func (d *Dataset) RawPositions() []fusion.Vec2 {
	out := make([]fusion.Vec2, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Measurement.Position
	}
	return out
}

// Truth returns the ground truth positions. ok is false unless every
// sample carries one.
func (d *Dataset) Truth() (truth []fusion.Vec2, ok bool) {
	if len(d.Samples) == 0 {
		return nil, false
	}
	truth = make([]fusion.Vec2, len(d.Samples))
	for i, s := range d.Samples {
		if s.Truth == nil {
			return nil, false
		}
		truth[i] = *s.Truth
	}
	return truth, true
}

// HasTruth reports whether every sample carries a ground truth position.
func (d *Dataset) HasTruth() bool {
	_, ok := d.Truth()
	return ok
}

// FirstOutOfOrder returns the index of the first sample whose timestamp is
// earlier than its predecessor's, or -1 when the dataset is ordered.
func (d *Dataset) FirstOutOfOrder() int {
	for i := 1; i < len(d.Samples); i++ {
		if d.Samples[i].Measurement.Timestamp < d.Samples[i-1].Measurement.Timestamp {
			return i
		}
	}
	return -1
}

// CheckOrdered returns an error naming the first out-of-order sample. The
// runner rejects such input at the same index, so callers use this to warn
// before fusing.
func CheckOrdered(ds *Dataset) error {
	i := ds.FirstOutOfOrder()
	if i < 0 {
		return nil
	}
	return fmt.Errorf("sample %d at t=%v precedes sample %d at t=%v",
		i, ds.Samples[i].Measurement.Timestamp, i-1, ds.Samples[i-1].Measurement.Timestamp)
}
