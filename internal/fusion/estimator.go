package fusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Numerical stability constants. Not user-tunable.
const (
	// MinRelativeDeterminant is the smallest det(S)/(S00·S11) accepted
	// before the innovation covariance is treated as singular.
	MinRelativeDeterminant = 1e-12
)

// Estimator holds a single running belief over [x, y, vx, vy] and applies
// the linear Kalman time and measurement updates to it.
//
// An Estimator is not safe for concurrent use. Independent runs need
// independent instances; none of the matrices are shared between them.
type Estimator struct {
	state      *mat.VecDense // [x, y, vx, vy]
	covariance *mat.Dense    // 4x4, symmetric PSD

	q *mat.Dense // process noise, fixed at construction
	r *mat.Dense // measurement noise, fixed at construction
	h *mat.Dense // observation model

	processVariance     float64
	measurementVariance float64
}

// NewEstimator returns an estimator with a zero state, identity
// covariance, Q = processVariance·I₄ and R = measurementVariance·I₂.
// Both variances must be finite and strictly positive.
func NewEstimator(processVariance, measurementVariance float64) (*Estimator, error) {
	if err := validateVariance("process_variance", processVariance); err != nil {
		return nil, err
	}
	if err := validateVariance("measurement_variance", measurementVariance); err != nil {
		return nil, err
	}
	return &Estimator{
		state:               mat.NewVecDense(StateDim, nil),
		covariance:          eye(StateDim),
		q:                   scaledEye(StateDim, processVariance),
		r:                   scaledEye(MeasurementDim, measurementVariance),
		h:                   ObservationModel(),
		processVariance:     processVariance,
		measurementVariance: measurementVariance,
	}, nil
}

func validateVariance(name string, v float64) error {
	if !isFinite(v) || v <= 0 {
		return fmt.Errorf("%w: %s must be finite and > 0, got %v", ErrInvalidParameter, name, v)
	}
	return nil
}

// Predict advances the belief by dt using the constant-velocity model with
// accel as the control input:
//
//	x' = F·x + u
//	P' = F·P·Fᵀ + Q
//
// dt = 0 is a no-motion step that still adds Q. A negative dt returns
// ErrNonMonotonicTime. On error the belief is unchanged.
func (e *Estimator) Predict(dt float64, accel Vec2) error {
	if !isFinite(dt) {
		return fmt.Errorf("%w: dt=%v", ErrNonFiniteInput, dt)
	}
	if dt < 0 {
		return fmt.Errorf("%w: dt=%v", ErrNonMonotonicTime, dt)
	}
	if !accel.IsFinite() {
		return fmt.Errorf("%w: acceleration=(%v, %v)", ErrNonFiniteInput, accel.X, accel.Y)
	}

	f := Transition(dt)

	var x mat.VecDense
	x.MulVec(f, e.state)
	x.AddVec(&x, ControlInput(dt, accel))

	var p mat.Dense
	p.Product(f, e.covariance, f.T())
	p.Add(&p, e.q)
	symmetrize(&p)

	return e.commit("predict", &x, &p)
}

// Correct fuses a position fix z into the belief:
//
//	y = z − H·x
//	S = H·P·Hᵀ + R
//	K = P·Hᵀ·S⁻¹
//	x' = x + K·y
//	P' = (I − K·H)·P
//
// On error the belief is unchanged.
func (e *Estimator) Correct(z Vec2) error {
	if !z.IsFinite() {
		return fmt.Errorf("%w: position=(%v, %v)", ErrNonFiniteInput, z.X, z.Y)
	}

	var hx mat.VecDense
	hx.MulVec(e.h, e.state)
	y := mat.NewVecDense(MeasurementDim, []float64{
		z.X - hx.AtVec(0),
		z.Y - hx.AtVec(1),
	})

	var s mat.Dense
	s.Product(e.h, e.covariance, e.h.T())
	s.Add(&s, e.r)

	sInv, err := invert2x2(&s)
	if err != nil {
		return err
	}

	var k mat.Dense
	k.Product(e.covariance, e.h.T(), sInv)

	var x mat.VecDense
	x.MulVec(&k, y)
	x.AddVec(e.state, &x)

	var kh mat.Dense
	kh.Mul(&k, e.h)
	ikh := eye(StateDim)
	ikh.Sub(ikh, &kh)

	var p mat.Dense
	p.Mul(ikh, e.covariance)
	symmetrize(&p)

	return e.commit("correct", &x, &p)
}

// invert2x2 inverts the innovation covariance in closed form.
func invert2x2(s *mat.Dense) (*mat.Dense, error) {
	s00, s01 := s.At(0, 0), s.At(0, 1)
	s10, s11 := s.At(1, 0), s.At(1, 1)

	det := s00*s11 - s01*s10
	if !isFinite(det) || det <= 0 || det < MinRelativeDeterminant*math.Abs(s00*s11) {
		return nil, fmt.Errorf("%w: det(S)=%g", ErrSingularInnovation, det)
	}

	return mat.NewDense(2, 2, []float64{
		s11 / det, -s01 / det,
		-s10 / det, s00 / det,
	}), nil
}

func (e *Estimator) commit(op string, x *mat.VecDense, p *mat.Dense) error {
	if !finiteMatrix(x) || !finiteMatrix(p) {
		return fmt.Errorf("%w: %s produced a non-finite belief", ErrNonFiniteInput, op)
	}
	e.state = x
	e.covariance = p
	return nil
}

// Position returns the current position estimate.
func (e *Estimator) Position() Vec2 {
	return Vec2{X: e.state.AtVec(0), Y: e.state.AtVec(1)}
}

// Velocity returns the current velocity estimate.
func (e *Estimator) Velocity() Vec2 {
	return Vec2{X: e.state.AtVec(2), Y: e.state.AtVec(3)}
}

// State returns a copy of the state vector [x, y, vx, vy].
func (e *Estimator) State() [StateDim]float64 {
	var out [StateDim]float64
	for i := range out {
		out[i] = e.state.AtVec(i)
	}
	return out
}

// Covariance returns a copy of the 4x4 covariance matrix.
func (e *Estimator) Covariance() *mat.Dense {
	return mat.DenseCopyOf(e.covariance)
}

// PositionVariance returns the diagonal position entries P[0,0], P[1,1].
func (e *Estimator) PositionVariance() Vec2 {
	return Vec2{X: e.covariance.At(0, 0), Y: e.covariance.At(1, 1)}
}

// ProcessVariance returns the scalar on the diagonal of Q.
func (e *Estimator) ProcessVariance() float64 {
	return e.processVariance
}

// MeasurementVariance returns the scalar on the diagonal of R.
func (e *Estimator) MeasurementVariance() float64 {
	return e.measurementVariance
}
