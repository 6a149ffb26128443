package fusion

import "gonum.org/v1/gonum/mat"

const (
	// StateDim is the length of the state vector [x, y, vx, vy].
	StateDim = 4
	// MeasurementDim is the length of a position fix [x, y].
	MeasurementDim = 2
)

// Transition returns the constant-velocity state transition matrix for
// an elapsed time dt:
//
//	F = [1  0  dt  0 ]
//	    [0  1  0   dt]
//	    [0  0  1   0 ]
//	    [0  0  0   1 ]
func Transition(dt float64) *mat.Dense {
	f := eye(StateDim)
	f.Set(0, 2, dt)
	f.Set(1, 3, dt)
	return f
}

// ControlInput returns the kinematic contribution of a piecewise-constant
// acceleration a held for dt: [½·ax·dt², ½·ay·dt², ax·dt, ay·dt].
func ControlInput(dt float64, a Vec2) *mat.VecDense {
	half := 0.5 * dt * dt
	return mat.NewVecDense(StateDim, []float64{
		half * a.X,
		half * a.Y,
		a.X * dt,
		a.Y * dt,
	})
}

// ObservationModel returns H, which selects the position components of
// the state. Velocity is never observed directly.
func ObservationModel() *mat.Dense {
	return mat.NewDense(MeasurementDim, StateDim, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func scaledEye(n int, s float64) *mat.Dense {
	m := eye(n)
	m.Scale(s, m)
	return m
}

// symmetrize replaces m with (m + mᵀ)/2 in place. m must be square.
func symmetrize(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

func finiteMatrix(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !isFinite(m.At(i, j)) {
				return false
			}
		}
	}
	return true
}
