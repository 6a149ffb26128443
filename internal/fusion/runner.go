package fusion

import (
	"fmt"
)

// Params are the two tunable variances of the filter.
type Params struct {
	ProcessVariance     float64 `json:"process_variance"`
	MeasurementVariance float64 `json:"measurement_variance"`
}

// DefaultParams returns the stock tuning: Q = 1e-3·I₄, R = 1.0·I₂.
func DefaultParams() Params {
	return Params{ProcessVariance: 1e-3, MeasurementVariance: 1.0}
}

// Validate returns ErrInvalidParameter if either variance is non-positive
// or non-finite.
func (p Params) Validate() error {
	if err := validateVariance("process_variance", p.ProcessVariance); err != nil {
		return err
	}
	return validateVariance("measurement_variance", p.MeasurementVariance)
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder attaches a diagnostics recorder that is called for every
// prediction and innovation. Passing nil disables recording.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// Runner turns an ordered measurement stream into an ordered trajectory
// estimate. Each call to Run or Stream starts from a fresh Estimator, so
// repeated calls with the same input give identical output.
type Runner struct {
	params   Params
	recorder Recorder
}

// NewRunner validates p and returns a Runner using it.
func NewRunner(p Params, opts ...Option) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{params: p}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Params returns the variances the runner was built with.
func (r *Runner) Params() Params {
	return r.params
}

// Run fuses records and returns one position estimate per record after
// the first. The first record only seeds the previous timestamp.
//
// records must be sorted by non-decreasing timestamp; the runner does not
// sort. Any failure aborts the run and returns no estimates together with
// a *StepError naming the offending record.
func (r *Runner) Run(records []Measurement) ([]Vec2, error) {
	n := len(records) - 1
	if n < 0 {
		n = 0
	}
	out := make([]Vec2, 0, n)
	_, err := r.Stream(records, func(s Step) error {
		out = append(out, s.Position)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream is the emit-as-you-go variant of Run. It calls emit once per
// fused record, in order, and returns how many steps were emitted. On a
// filter failure the steps already emitted remain valid; the returned
// error is a *StepError. An error returned by emit stops the stream and
// is returned wrapped.
func (r *Runner) Stream(records []Measurement, emit func(Step) error) (int, error) {
	est, err := NewEstimator(r.params.ProcessVariance, r.params.MeasurementVariance)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	prev := records[0].Timestamp
	if !isFinite(prev) {
		return 0, &StepError{Index: 0, Timestamp: prev, Err: fmt.Errorf("%w: timestamp=%v", ErrNonFiniteInput, prev)}
	}

	emitted := 0
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if !isFinite(rec.Timestamp) {
			return emitted, &StepError{Index: i, Timestamp: rec.Timestamp, Err: fmt.Errorf("%w: timestamp=%v", ErrNonFiniteInput, rec.Timestamp)}
		}

		dt := rec.Timestamp - prev
		if err := est.Predict(dt, rec.Acceleration); err != nil {
			return emitted, &StepError{Index: i, Timestamp: rec.Timestamp, Err: err}
		}
		if r.recorder != nil {
			r.recorder.RecordPrediction(i, dt, est.State())
		}

		predicted := est.Position()
		if err := est.Correct(rec.Position); err != nil {
			return emitted, &StepError{Index: i, Timestamp: rec.Timestamp, Err: err}
		}
		innovation := rec.Position.Sub(predicted)
		if r.recorder != nil {
			r.recorder.RecordInnovation(i, predicted, rec.Position)
		}

		step := Step{
			Index:            i,
			Timestamp:        rec.Timestamp,
			Position:         est.Position(),
			Velocity:         est.Velocity(),
			Innovation:       innovation,
			PositionVariance: est.PositionVariance(),
		}
		if err := emit(step); err != nil {
			return emitted, fmt.Errorf("emit step %d: %w", i, err)
		}
		emitted++
		prev = rec.Timestamp
	}
	return emitted, nil
}

// Run is shorthand for NewRunner(p).Run(records).
func Run(p Params, records []Measurement) ([]Vec2, error) {
	r, err := NewRunner(p)
	if err != nil {
		return nil, err
	}
	return r.Run(records)
}
