// Package fusion owns the IMU/GPS state estimator.
//
// Responsibilities: the linear constant-velocity Kalman filter
// (Estimator) with acceleration as control input and position fixes as
// observations, and the sequential runner (Runner) that drives it over a
// time-ordered measurement stream.
// Key types: Estimator, Runner, Measurement, Vec2.
//
// Dependency rule: fusion depends only on gonum/mat. No I/O, logging,
// storage or HTTP code is allowed in this package; collaborators live in
// sensordata, store, report and api.
package fusion
