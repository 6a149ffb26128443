package fusion

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter reports a non-positive or non-finite variance.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrNonMonotonicTime reports a negative elapsed time between records.
	ErrNonMonotonicTime = errors.New("non-monotonic time")
	// ErrNonFiniteInput reports a NaN or infinite input, or a step whose
	// result would no longer be finite.
	ErrNonFiniteInput = errors.New("non-finite input")
	// ErrSingularInnovation reports an innovation covariance that cannot
	// be inverted.
	ErrSingularInnovation = errors.New("singular innovation covariance")
)

// StepError ties a filter failure to the measurement that caused it.
// It unwraps to one of the sentinel errors above.
type StepError struct {
	Index     int
	Timestamp float64
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("measurement %d (t=%g): %v", e.Index, e.Timestamp, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
