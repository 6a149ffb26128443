package fusion

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewEstimator_InitialBelief(t *testing.T) {
	t.Parallel()

	for _, p := range []Params{
		{ProcessVariance: 1e-3, MeasurementVariance: 1.0},
		{ProcessVariance: 1e-5, MeasurementVariance: 0.1},
		{ProcessVariance: 0.1, MeasurementVariance: 5.0},
	} {
		est, err := NewEstimator(p.ProcessVariance, p.MeasurementVariance)
		require.NoError(t, err)

		assert.Equal(t, [StateDim]float64{0, 0, 0, 0}, est.State())
		assert.True(t, mat.Equal(eye(StateDim), est.Covariance()), "covariance should start at identity")
		assert.Equal(t, p.ProcessVariance, est.ProcessVariance())
		assert.Equal(t, p.MeasurementVariance, est.MeasurementVariance())
	}
}

func TestNewEstimator_InvalidParameter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		pv, mv float64
	}{
		{"zero process", 0, 1},
		{"negative process", -1e-3, 1},
		{"nan process", math.NaN(), 1},
		{"inf process", math.Inf(1), 1},
		{"zero measurement", 1e-3, 0},
		{"negative measurement", 1e-3, -2},
		{"nan measurement", 1e-3, math.NaN()},
		{"inf measurement", 1e-3, math.Inf(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			est, err := NewEstimator(tc.pv, tc.mv)
			assert.Nil(t, est)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestPredict_ZeroDtAddsExactlyQ(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-3, 1.0)
	require.NoError(t, err)

	// Move away from the prior first so the check is not trivial.
	require.NoError(t, est.Predict(0.5, Vec2{X: 1, Y: -2}))
	require.NoError(t, est.Correct(Vec2{X: 0.3, Y: -0.1}))

	before := est.Covariance()
	pos := est.Position()
	vel := est.Velocity()

	require.NoError(t, est.Predict(0, Vec2{X: 3, Y: 4}))

	after := est.Covariance()
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			want := before.At(i, j)
			if i == j {
				want += 1e-3
			}
			assert.InDelta(t, want, after.At(i, j), 1e-15, "P[%d,%d]", i, j)
		}
	}
	assert.Equal(t, pos, est.Position())
	assert.Equal(t, vel, est.Velocity(), "control term is zero at dt=0")
}

func TestPredict_ControlInput(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-3, 1.0)
	require.NoError(t, err)

	require.NoError(t, est.Predict(2, Vec2{X: 1, Y: -0.5}))
	assert.InDelta(t, 2.0, est.Position().X, 1e-12) // ½·1·2²
	assert.InDelta(t, -1.0, est.Position().Y, 1e-12)
	assert.InDelta(t, 2.0, est.Velocity().X, 1e-12)
	assert.InDelta(t, -1.0, est.Velocity().Y, 1e-12)

	// Constant velocity carries over on the next step.
	require.NoError(t, est.Predict(1, Vec2{}))
	assert.InDelta(t, 4.0, est.Position().X, 1e-12)
	assert.InDelta(t, -2.0, est.Position().Y, 1e-12)
}

func TestPredict_RepeatedNeverDecreasesDiagonal(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-4, 0.5)
	require.NoError(t, err)

	prev := est.Covariance()
	for i, dt := range []float64{0.1, 0, 0.25, 1, 0.01, 3} {
		require.NoError(t, est.Predict(dt, Vec2{X: 0.2, Y: 0.1}))
		cur := est.Covariance()
		for d := 0; d < StateDim; d++ {
			assert.Greater(t, cur.At(d, d), prev.At(d, d), "step %d diag %d", i, d)
		}
		prev = cur
	}
}

func TestCorrect_FrobeniusNormNonIncreasing(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-2, 0.8)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, est.Predict(0.1*float64(i%4), Vec2{X: 0.1, Y: -0.2}))
		before := mat.Norm(est.Covariance(), 2)
		require.NoError(t, est.Correct(Vec2{X: float64(i) * 0.05, Y: -float64(i) * 0.02}))
		after := mat.Norm(est.Covariance(), 2)
		assert.LessOrEqual(t, after, before+1e-12, "correct %d", i)
	}
}

func TestCovarianceStaysSymmetricPSD(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-3, 1.0)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, est.Predict(0.05, Vec2{X: math.Sin(float64(i)), Y: math.Cos(float64(i))}))
		assertSymmetricPSD(t, est.Covariance())
		require.NoError(t, est.Correct(Vec2{X: float64(i) * 0.1, Y: 2}))
		assertSymmetricPSD(t, est.Covariance())
	}
}

func assertSymmetricPSD(t *testing.T, p *mat.Dense) {
	t.Helper()
	n, _ := p.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			require.Equal(t, p.At(i, j), p.At(j, i), "P[%d,%d] asymmetric", i, j)
			if j >= i {
				sym.SetSym(i, j, p.At(i, j))
			}
		}
	}
	var eig mat.EigenSym
	require.True(t, eig.Factorize(sym, false))
	for _, v := range eig.Values(nil) {
		require.GreaterOrEqual(t, v, -1e-9)
	}
}

func TestCorrect_BlendsPredictionAndMeasurement(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-3, 1.0)
	require.NoError(t, err)

	require.NoError(t, est.Predict(1, Vec2{}))
	require.NoError(t, est.Correct(Vec2{X: 1.0, Y: 0.0}))

	pos := est.Position()
	assert.Greater(t, pos.X, 0.0)
	assert.Less(t, pos.X, 1.0)
	assert.Equal(t, 0.0, pos.Y)
	// P00 = 1 + dt² + q = 2.001, gain = P00 / (P00 + r).
	assert.InDelta(t, 2.001/3.001, pos.X, 1e-12)
}

func TestCorrect_RepeatedWithoutPredict(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-3, 1.0)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, est.Correct(Vec2{X: 5, Y: 5}))
	}
	assert.InDelta(t, 5, est.Position().X, 0.5)
	assert.InDelta(t, 5, est.Position().Y, 0.5)
}

func TestPredict_Errors(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-3, 1.0)
	require.NoError(t, err)
	require.NoError(t, est.Predict(1, Vec2{X: 1}))
	state := est.State()
	cov := est.Covariance()

	assert.ErrorIs(t, est.Predict(-0.1, Vec2{}), ErrNonMonotonicTime)
	assert.ErrorIs(t, est.Predict(math.NaN(), Vec2{}), ErrNonFiniteInput)
	assert.ErrorIs(t, est.Predict(math.Inf(1), Vec2{}), ErrNonFiniteInput)
	assert.ErrorIs(t, est.Predict(1, Vec2{X: math.NaN()}), ErrNonFiniteInput)
	assert.ErrorIs(t, est.Predict(1, Vec2{Y: math.Inf(-1)}), ErrNonFiniteInput)
	assert.ErrorIs(t, est.Correct(Vec2{X: math.Inf(1)}), ErrNonFiniteInput)

	// Failed calls leave the belief untouched.
	assert.Equal(t, state, est.State())
	assert.True(t, mat.Equal(cov, est.Covariance()))
}

func TestPredict_OverflowIsReported(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(1e-3, 1.0)
	require.NoError(t, err)

	err = est.Predict(1e200, Vec2{X: 1e200})
	assert.True(t, errors.Is(err, ErrNonFiniteInput), "got %v", err)
	assert.Equal(t, [StateDim]float64{}, est.State())
}

func TestInvert2x2(t *testing.T) {
	t.Parallel()

	inv, err := invert2x2(mat.NewDense(2, 2, []float64{4, 1, 1, 3}))
	require.NoError(t, err)
	var prod mat.Dense
	prod.Mul(mat.NewDense(2, 2, []float64{4, 1, 1, 3}), inv)
	assert.True(t, mat.EqualApprox(eye(2), &prod, 1e-12))

	_, err = invert2x2(mat.NewDense(2, 2, []float64{1, 1, 1, 1}))
	assert.ErrorIs(t, err, ErrSingularInnovation)

	_, err = invert2x2(mat.NewDense(2, 2, []float64{0, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrSingularInnovation)

	_, err = invert2x2(mat.NewDense(2, 2, []float64{math.NaN(), 0, 0, 1}))
	assert.ErrorIs(t, err, ErrSingularInnovation)
}

func TestTransition(t *testing.T) {
	t.Parallel()

	f := Transition(0.25)
	want := mat.NewDense(4, 4, []float64{
		1, 0, 0.25, 0,
		0, 1, 0, 0.25,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	assert.True(t, mat.Equal(want, f))

	// Each call builds a new matrix.
	f.Set(0, 2, 99)
	assert.Equal(t, 0.5, Transition(0.5).At(0, 2))
}

func TestControlInput(t *testing.T) {
	t.Parallel()

	u := ControlInput(0.5, Vec2{X: 2, Y: -4})
	assert.Equal(t, []float64{0.25, -0.5, 1, -2}, u.RawVector().Data)
	assert.Equal(t, []float64{0, 0, 0, 0}, ControlInput(0, Vec2{X: 2, Y: -4}).RawVector().Data)
}
