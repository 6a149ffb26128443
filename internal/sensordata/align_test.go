package sensordata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign_InterpolatesAcceleration(t *testing.T) {
	t.Parallel()

	imu := []IMUReading{
		{Time: 0, Acceleration: fusion.Vec2{X: 0, Y: 1}},
		{Time: 1, Acceleration: fusion.Vec2{X: 2, Y: 1}},
		{Time: 2, Acceleration: fusion.Vec2{X: 2, Y: -1}},
	}
	gps := []GPSFix{
		{Time: -1, Position: fusion.Vec2{X: 9}},
		{Time: 0.25, Position: fusion.Vec2{X: 1}},
		{Time: 1, Position: fusion.Vec2{X: 2}},
		{Time: 1.5, Position: fusion.Vec2{X: 3}},
		{Time: 5, Position: fusion.Vec2{X: 4}},
	}

	samples, err := Align(imu, gps)
	require.NoError(t, err)
	require.Len(t, samples, len(gps))

	want := []fusion.Vec2{
		{X: 0, Y: 1},   // held before the IMU span
		{X: 0.5, Y: 1}, // interpolated
		{X: 2, Y: 1},   // exact reading
		{X: 2, Y: 0},   // interpolated
		{X: 2, Y: -1},  // held after the IMU span
	}
	for i, s := range samples {
		assert.Equal(t, gps[i].Time, s.Measurement.Timestamp)
		assert.Equal(t, gps[i].Position, s.Measurement.Position)
		assert.InDelta(t, want[i].X, s.Measurement.Acceleration.X, 1e-12, "fix %d", i)
		assert.InDelta(t, want[i].Y, s.Measurement.Acceleration.Y, 1e-12, "fix %d", i)
		assert.Nil(t, s.Truth)
	}
}

func TestAlign_Errors(t *testing.T) {
	t.Parallel()

	_, err := Align(nil, []GPSFix{{Time: 0}})
	assert.Error(t, err)

	_, err = Align([]IMUReading{{Time: 1}, {Time: 0}}, nil)
	assert.ErrorContains(t, err, "IMU reading 1")

	_, err = Align([]IMUReading{{Time: 0}}, []GPSFix{{Time: 2}, {Time: 1}})
	assert.ErrorContains(t, err, "GPS fix 1")
}

func TestLoadAlignedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	imuPath := filepath.Join(dir, "imu.csv")
	gpsPath := filepath.Join(dir, "gps_run.csv")
	require.NoError(t, os.WriteFile(imuPath, []byte("time,ax,ay\n0,1,0\n0.5,1,0\n1,3,0\n"), 0644))
	require.NoError(t, os.WriteFile(gpsPath, []byte("time,gps_x,gps_y\n0,0,0\n0.75,1,1\n"), 0644))

	ds, err := LoadAlignedFiles(imuPath, gpsPath)
	require.NoError(t, err)
	assert.Equal(t, "gps_run", ds.Name)
	require.Equal(t, 2, ds.Len())
	assert.InDelta(t, 2.0, ds.Samples[1].Measurement.Acceleration.X, 1e-12)
	assert.Equal(t, fusion.Vec2{X: 1, Y: 1}, ds.Samples[1].Measurement.Position)
}

func TestReadIMUAndGPSCSV_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadIMUCSV(strings.NewReader("time,ax\n0,1\n"))
	assert.ErrorContains(t, err, `"ay"`)

	_, err = ReadGPSCSV(strings.NewReader("t,x,y\n0,1,2\n"))
	assert.ErrorContains(t, err, `"time"`)

	_, err = ReadGPSCSV(strings.NewReader("time,x,y\n0,1,oops\n"))
	assert.ErrorContains(t, err, "line 2")
}
