package evaluation

import (
	"testing"

	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/sensordata"
	"github.com/banshee-data/trajectory.report/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	truth := []fusion.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}}
	est := []fusion.Vec2{{X: 3, Y: 4}, {X: 1, Y: 0}}
	raw := []fusion.Vec2{{X: 6, Y: 8}, {X: 1, Y: 10}}

	m, err := Compare(est, truth, raw)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count)
	assert.InDelta(t, 2.5, m.MAE, 1e-12)
	assert.InDelta(t, 3.5355339, m.RMSE, 1e-6) // sqrt(25/2)
	assert.InDelta(t, 5.0, m.MaxError, 1e-12)
	assert.InDelta(t, 10.0, m.RawMAE, 1e-12)
	assert.InDelta(t, 10.0, m.RawRMSE, 1e-12)
	assert.InDelta(t, 1-m.RMSE/10, m.Improvement, 1e-12)
}

func TestCompare_Errors(t *testing.T) {
	t.Parallel()

	_, err := Compare(make([]fusion.Vec2, 2), make([]fusion.Vec2, 3), nil)
	assert.Error(t, err)
	_, err = Compare(make([]fusion.Vec2, 2), make([]fusion.Vec2, 2), make([]fusion.Vec2, 1))
	assert.Error(t, err)

	m, err := Compare(nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, m)
}

func TestForDataset(t *testing.T) {
	t.Parallel()

	s := sim.DefaultScenario()
	s.Samples = 300
	ds, err := sim.Generate(s)
	require.NoError(t, err)

	est, err := fusion.Run(fusion.DefaultParams(), ds.Measurements())
	require.NoError(t, err)

	m, err := ForDataset(ds, est)
	require.NoError(t, err)
	assert.Equal(t, 299, m.Count)
	assert.Less(t, m.RMSE, m.RawRMSE)
	assert.Greater(t, m.Improvement, 0.0)

	_, err = ForDataset(ds, est[1:])
	assert.Error(t, err)
}

func TestForDataset_NoTruth(t *testing.T) {
	t.Parallel()

	ds := &sensordata.Dataset{Samples: []sensordata.Sample{{}, {}}}
	_, err := ForDataset(ds, make([]fusion.Vec2, 1))
	assert.ErrorIs(t, err, ErrNoTruth)
}
