package sweep

import (
	"context"
	"errors"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/trajectory.report/internal/evaluation"
	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/sensordata"
)

// Result is the outcome of one grid point.
type Result struct {
	Params        fusion.Params       `json:"params"`
	Metrics       *evaluation.Metrics `json:"metrics,omitempty"` // nil when the dataset has no truth
	InnovationRMS float64             `json:"innovation_rms"`
	Estimates     int                 `json:"estimates"`
	Err           error               `json:"-"`
	Error         string              `json:"error,omitempty"`
}

// Run fuses ds once per grid point using up to workers goroutines.
// Results come back in grid order. A failing grid point is recorded in its
// Result rather than stopping the sweep; only context cancellation does.
func Run(ctx context.Context, ds *sensordata.Dataset, grid []fusion.Params, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}
	records := ds.Measurements()
	results := make([]Result, len(grid))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range grid {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = runPoint(ds, records, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// gctx is always cancelled once Wait returns; only the caller's ctx
	// says whether the sweep was interrupted.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	monitoring.Debugf("sweep: %d grid points over %q with %d workers", len(grid), ds.Name, workers)
	return results, nil
}

func runPoint(ds *sensordata.Dataset, records []fusion.Measurement, p fusion.Params) Result {
	res := Result{Params: p}
	col := fusion.NewCollector()
	r, err := fusion.NewRunner(p, fusion.WithRecorder(col))
	if err != nil {
		return res.fail(err)
	}
	est, err := r.Run(records)
	if err != nil {
		return res.fail(err)
	}
	res.Estimates = len(est)
	res.InnovationRMS = col.InnovationRMS()

	m, err := evaluation.ForDataset(ds, est)
	switch {
	case errors.Is(err, evaluation.ErrNoTruth):
	case err != nil:
		return res.fail(err)
	default:
		res.Metrics = &m
	}
	return res
}

func (r Result) fail(err error) Result {
	r.Err = err
	r.Error = err.Error()
	return r
}

// score is the ranking key: MAE against truth when available, otherwise
// the innovation RMS. Failed points sort last.
func (r Result) score() float64 {
	if r.Err != nil {
		return math.Inf(1)
	}
	if r.Metrics != nil {
		return r.Metrics.MAE
	}
	return r.InnovationRMS
}

// Rank sorts results best first, in place, and returns them.
func Rank(results []Result) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score() < results[j].score()
	})
	return results
}

// Best returns the best successful result, or false when every point failed.
func Best(results []Result) (Result, bool) {
	var best Result
	found := false
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if !found || r.score() < best.score() {
			best, found = r, true
		}
	}
	return best, found
}
