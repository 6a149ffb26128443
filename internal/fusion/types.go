package fusion

import "math"

// Vec2 is a 2D quantity in the world frame (metres, m/s or m/s²
// depending on context).
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both components are neither NaN nor ±Inf.
func (v Vec2) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y)
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Norm returns the Euclidean length of v.
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// Measurement is one combined sensor record: the IMU acceleration and the
// GPS position reported at Timestamp. Timestamp units must match the
// units used for acceleration (typically seconds and m/s²).
type Measurement struct {
	Timestamp    float64 `json:"time"`
	Acceleration Vec2    `json:"acceleration"`
	Position     Vec2    `json:"position"`
}

// Step is the fused estimate emitted for one processed measurement.
type Step struct {
	Index     int     // Index of the measurement in the input sequence
	Timestamp float64 // Timestamp of that measurement
	Position  Vec2    // Post-correction position estimate
	Velocity  Vec2    // Post-correction velocity estimate

	// Innovation is measurement minus predicted position, taken before
	// the correction was applied.
	Innovation Vec2

	// PositionVariance holds the post-correction P[0,0] and P[1,1].
	PositionVariance Vec2
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
