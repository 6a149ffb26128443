package sensordata

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `time,gps_x,gps_y,absolute_x,absolute_y,imu_acceleration_x,imu_acceleration_y
0.0,0.1,-0.2,0,0,0.5,0
0.1,0.3,0.1,0.1,0.0,0.5,0.1
0.2,0.15,0.05,0.2,0.0,0.4,-0.1
`

func TestReadCSV(t *testing.T) {
	t.Parallel()

	ds, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())

	m := ds.Samples[1].Measurement
	assert.Equal(t, 0.1, m.Timestamp)
	assert.Equal(t, fusion.Vec2{X: 0.3, Y: 0.1}, m.Position)
	assert.Equal(t, fusion.Vec2{X: 0.5, Y: 0.1}, m.Acceleration)
	require.NotNil(t, ds.Samples[1].Truth)
	assert.Equal(t, fusion.Vec2{X: 0.1, Y: 0}, *ds.Samples[1].Truth)

	truth, ok := ds.Truth()
	assert.True(t, ok)
	assert.Len(t, truth, 3)
	assert.Equal(t, []float64{0, 0.1, 0.2}, ds.Timestamps())
	assert.Equal(t, []float64{0.1, 0.2}, ds.EstimateTimestamps())
	assert.Equal(t, -1, ds.FirstOutOfOrder())
	assert.NoError(t, CheckOrdered(ds))
}

func TestReadCSV_ColumnOrderAndNoTruth(t *testing.T) {
	t.Parallel()

	in := "imu_acceleration_y, imu_acceleration_x, gps_y, gps_x, Time\n1,2,3,4,5\n"
	ds, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	m := ds.Samples[0].Measurement
	assert.Equal(t, 5.0, m.Timestamp)
	assert.Equal(t, fusion.Vec2{X: 4, Y: 3}, m.Position)
	assert.Equal(t, fusion.Vec2{X: 2, Y: 1}, m.Acceleration)
	assert.Nil(t, ds.Samples[0].Truth)
	assert.False(t, ds.HasTruth())
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want string
	}{
		"empty":          {"", "empty input"},
		"missing column": {"time,gps_x,gps_y,imu_acceleration_x\n0,0,0,0\n", `"imu_acceleration_y"`},
		"half truth":     {"time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y,absolute_x\n0,0,0,0,0,0\n", "together"},
		"bad number":     {"time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y\n0,abc,0,0,0\n", "invalid gps_x at line 2"},
		"nan":            {"time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y\n0,0,0,0,0\n1,0,NaN,0,0\n", "non-finite gps_y at line 3"},
		"inf":            {"time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y\n+Inf,0,0,0,0\n", "non-finite time"},
		"ragged row":     {"time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y\n0,0,0\n", "failed to read CSV"},
		"duplicate":      {"time,time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y\n", "duplicate column"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestReadCSV_KeepsOrder(t *testing.T) {
	t.Parallel()

	in := "time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y\n0,0,0,0,0\n2,0,0,0,0\n1,0,0,0,0\n"
	ds, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 1}, ds.Timestamps())
	assert.Equal(t, 2, ds.FirstOutOfOrder())
	assert.ErrorContains(t, CheckOrdered(ds), "sample 2")
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	ds, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))
	assert.True(t, strings.HasPrefix(buf.String(), "time,gps_x,gps_y,absolute_x,absolute_y,imu_acceleration_x,imu_acceleration_y\n"))

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, ds.Samples, back.Samples)
}

func TestWriteCSV_WithoutTruth(t *testing.T) {
	t.Parallel()

	ds := &Dataset{Samples: []Sample{{Measurement: fusion.Measurement{Timestamp: 1}}}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))
	assert.Equal(t, "time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y\n1,0,0,0,0\n", buf.String())
}

func TestWriteTrajectoryCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteTrajectoryCSV(&buf, []float64{0.1, 0.2}, []fusion.Vec2{{X: 1, Y: 2}, {X: 1.5, Y: -0.25}})
	require.NoError(t, err)
	assert.Equal(t, "time,est_x,est_y\n0.1,1,2\n0.2,1.5,-0.25\n", buf.String())

	err = WriteTrajectoryCSV(&buf, []float64{0.1}, nil)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "IMU_GPS_sensor_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	ds, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "IMU_GPS_sensor_data", ds.Name)
	assert.Equal(t, 3, ds.Len())

	_, err = LoadFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(txt, []byte(sampleCSV), 0644))
	_, err = LoadFile(txt)
	assert.ErrorContains(t, err, ".csv extension")
}
