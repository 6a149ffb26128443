// Package report renders fused trajectories next to the raw GPS fixes and
// ground truth, as a static image (gonum/plot) or an interactive HTML page
// (go-echarts).
package report

import (
	"errors"
	"image/color"

	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/sensordata"
)

// Series names, used in legends.
const (
	SeriesRaw      = "GPS measured"
	SeriesTruth    = "ground truth"
	SeriesEstimate = "Kalman estimate"
)

var (
	rawColor      = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	truthColor    = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	estimateColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// ErrEmpty is returned when a series has nothing to draw.
var ErrEmpty = errors.New("report: nothing to plot")

// Series holds the three trajectories to draw. Any of them may be empty.
type Series struct {
	Raw      []fusion.Vec2
	Truth    []fusion.Vec2
	Estimate []fusion.Vec2
}

// FromRun builds the series for a run over ds. Truth is left empty when
// the dataset does not carry it.
func FromRun(ds *sensordata.Dataset, estimates []fusion.Vec2) Series {
	s := Series{Raw: ds.RawPositions(), Estimate: estimates}
	if truth, ok := ds.Truth(); ok {
		s.Truth = truth
	}
	return s
}

func (s Series) empty() bool {
	return len(s.Raw) == 0 && len(s.Truth) == 0 && len(s.Estimate) == 0
}
