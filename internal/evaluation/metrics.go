// Package evaluation scores fused trajectories against ground truth.
package evaluation

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/sensordata"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoTruth is returned by ForDataset when the dataset has no ground truth.
var ErrNoTruth = errors.New("dataset has no ground truth")

// Metrics summarises Euclidean position errors (metres). The Raw* fields
// score the GPS measurements themselves, so Improvement shows what the
// filter bought over trusting GPS directly.
type Metrics struct {
	Count       int     `json:"count"`
	MAE         float64 `json:"mae"`
	RMSE        float64 `json:"rmse"`
	MaxError    float64 `json:"max_error"`
	RawMAE      float64 `json:"raw_mae"`
	RawRMSE     float64 `json:"raw_rmse"`
	Improvement float64 `json:"improvement"` // 1 − RMSE/RawRMSE; 0 without raw positions
}

// Compare scores estimates against truth. raw may be nil; otherwise it
// must match truth in length.
func Compare(estimates, truth, raw []fusion.Vec2) (Metrics, error) {
	if len(estimates) != len(truth) {
		return Metrics{}, fmt.Errorf("estimates (%d) and truth (%d) differ in length", len(estimates), len(truth))
	}
	if raw != nil && len(raw) != len(truth) {
		return Metrics{}, fmt.Errorf("raw positions (%d) and truth (%d) differ in length", len(raw), len(truth))
	}
	m := Metrics{Count: len(truth)}
	if m.Count == 0 {
		return m, nil
	}

	errs := distances(estimates, truth)
	m.MAE = stat.Mean(errs, nil)
	m.RMSE = rms(errs)
	m.MaxError = floats.Max(errs)

	if raw != nil {
		rawErrs := distances(raw, truth)
		m.RawMAE = stat.Mean(rawErrs, nil)
		m.RawRMSE = rms(rawErrs)
		if m.RawRMSE > 0 {
			m.Improvement = 1 - m.RMSE/m.RawRMSE
		}
	}
	return m, nil
}

// ForDataset scores the output of a run over ds. A run emits one estimate
// per sample after the first, so estimates line up with ds.Samples[1:].
func ForDataset(ds *sensordata.Dataset, estimates []fusion.Vec2) (Metrics, error) {
	truth, ok := ds.Truth()
	if !ok {
		return Metrics{}, ErrNoTruth
	}
	if len(estimates) != len(truth)-1 {
		return Metrics{}, fmt.Errorf("expected %d estimates for %d samples, got %d", len(truth)-1, len(truth), len(estimates))
	}
	return Compare(estimates, truth[1:], ds.RawPositions()[1:])
}

func distances(a, b []fusion.Vec2) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i].Sub(b[i]).Norm()
	}
	return out
}

func rms(xs []float64) float64 {
	return math.Sqrt(floats.Dot(xs, xs) / float64(len(xs)))
}
