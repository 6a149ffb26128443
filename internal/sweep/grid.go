package sweep

import (
	"fmt"

	"github.com/banshee-data/trajectory.report/internal/fusion"
)

// MaxGridPoints bounds the cartesian product built by Grid.
const MaxGridPoints = 10000

// Grid returns the cartesian product of the process and measurement
// variance candidates, process variance varying slowest.
func Grid(processVariances, measurementVariances []float64) ([]fusion.Params, error) {
	total := int64(len(processVariances)) * int64(len(measurementVariances))
	if total > MaxGridPoints {
		return nil, fmt.Errorf("parameter combinations (%d) would exceed safe limit of %d", total, MaxGridPoints)
	}
	out := make([]fusion.Params, 0, total)
	for _, pv := range processVariances {
		for _, mv := range measurementVariances {
			out = append(out, fusion.Params{ProcessVariance: pv, MeasurementVariance: mv})
		}
	}
	return out, nil
}
