package fusion

import "math"

// Recorder receives per-step filter diagnostics from a Runner.
type Recorder interface {
	// RecordPrediction is called after the time update of record index.
	RecordPrediction(index int, dt float64, state [StateDim]float64)
	// RecordInnovation is called after the measurement update of record
	// index with the predicted and measured positions.
	RecordInnovation(index int, predicted, measured Vec2)
}

// Prediction is one time-update snapshot.
type Prediction struct {
	Index int
	Dt    float64
	State [StateDim]float64
}

// Innovation is one measurement residual.
type Innovation struct {
	Index     int
	Predicted Vec2
	Measured  Vec2
	Residual  float64 // |measured − predicted| (metres)
}

// Collector is an in-memory Recorder. The zero value is ready to use.
type Collector struct {
	Predictions []Prediction
	Innovations []Innovation
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) RecordPrediction(index int, dt float64, state [StateDim]float64) {
	c.Predictions = append(c.Predictions, Prediction{Index: index, Dt: dt, State: state})
}

func (c *Collector) RecordInnovation(index int, predicted, measured Vec2) {
	c.Innovations = append(c.Innovations, Innovation{
		Index:     index,
		Predicted: predicted,
		Measured:  measured,
		Residual:  measured.Sub(predicted).Norm(),
	})
}

// InnovationRMS returns the root-mean-square innovation magnitude, or 0
// when nothing was recorded.
func (c *Collector) InnovationRMS() float64 {
	if len(c.Innovations) == 0 {
		return 0
	}
	var sumSq float64
	for _, in := range c.Innovations {
		sumSq += in.Residual * in.Residual
	}
	return math.Sqrt(sumSq / float64(len(c.Innovations)))
}

// Reset clears all recorded data.
func (c *Collector) Reset() {
	c.Predictions = c.Predictions[:0]
	c.Innovations = c.Innovations[:0]
}
