package sensordata

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/trajectory.report/internal/fusion"
)

// IMUReading is one acceleration sample from the inertial sensor.
type IMUReading struct {
	Time         float64
	Acceleration fusion.Vec2
}

// GPSFix is one absolute position fix.
type GPSFix struct {
	Time     float64
	Position fusion.Vec2
}

// Align combines an IMU stream and a GPS stream that sample at different
// rates into one record per GPS fix. The acceleration at each fix time is
// linearly interpolated between the bracketing IMU readings and held at
// the first/last reading outside the IMU time span. Both streams must be
// ordered by time and the IMU stream must not be empty.
func Align(imu []IMUReading, gps []GPSFix) ([]Sample, error) {
	if len(imu) == 0 {
		return nil, fmt.Errorf("no IMU readings to align")
	}
	for i := 1; i < len(imu); i++ {
		if imu[i].Time < imu[i-1].Time {
			return nil, fmt.Errorf("IMU reading %d is out of order (%g < %g)", i, imu[i].Time, imu[i-1].Time)
		}
	}
	for i := 1; i < len(gps); i++ {
		if gps[i].Time < gps[i-1].Time {
			return nil, fmt.Errorf("GPS fix %d is out of order (%g < %g)", i, gps[i].Time, gps[i-1].Time)
		}
	}

	out := make([]Sample, 0, len(gps))
	for _, fix := range gps {
		out = append(out, Sample{Measurement: fusion.Measurement{
			Timestamp:    fix.Time,
			Acceleration: accelerationAt(imu, fix.Time),
			Position:     fix.Position,
		}})
	}
	return out, nil
}

func accelerationAt(imu []IMUReading, t float64) fusion.Vec2 {
	// First reading strictly after t.
	j := sort.Search(len(imu), func(i int) bool { return imu[i].Time > t })
	switch {
	case j == 0:
		return imu[0].Acceleration
	case j == len(imu):
		return imu[len(imu)-1].Acceleration
	}
	a, b := imu[j-1], imu[j]
	span := b.Time - a.Time
	if span <= 0 {
		return a.Acceleration
	}
	w := (t - a.Time) / span
	return fusion.Vec2{
		X: a.Acceleration.X + w*(b.Acceleration.X-a.Acceleration.X),
		Y: a.Acceleration.Y + w*(b.Acceleration.Y-a.Acceleration.Y),
	}
}

// ReadIMUCSV parses time,ax,ay (imu_acceleration_x/y are accepted too).
func ReadIMUCSV(r io.Reader) ([]IMUReading, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	ct, err := t.require(ColTime)
	if err != nil {
		return nil, err
	}
	cx, err := t.require("ax", ColAccelX)
	if err != nil {
		return nil, err
	}
	cy, err := t.require("ay", ColAccelY)
	if err != nil {
		return nil, err
	}

	out := make([]IMUReading, 0, len(t.rows))
	for row := range t.rows {
		ts, err := t.float(row, ct, ColTime)
		if err != nil {
			return nil, err
		}
		ax, err := t.float(row, cx, "ax")
		if err != nil {
			return nil, err
		}
		ay, err := t.float(row, cy, "ay")
		if err != nil {
			return nil, err
		}
		out = append(out, IMUReading{Time: ts, Acceleration: fusion.Vec2{X: ax, Y: ay}})
	}
	return out, nil
}

// ReadGPSCSV parses time,x,y (gps_x/gps_y are accepted too).
func ReadGPSCSV(r io.Reader) ([]GPSFix, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	ct, err := t.require(ColTime)
	if err != nil {
		return nil, err
	}
	cx, err := t.require("x", ColGPSX)
	if err != nil {
		return nil, err
	}
	cy, err := t.require("y", ColGPSY)
	if err != nil {
		return nil, err
	}

	out := make([]GPSFix, 0, len(t.rows))
	for row := range t.rows {
		ts, err := t.float(row, ct, ColTime)
		if err != nil {
			return nil, err
		}
		x, err := t.float(row, cx, "x")
		if err != nil {
			return nil, err
		}
		y, err := t.float(row, cy, "y")
		if err != nil {
			return nil, err
		}
		out = append(out, GPSFix{Time: ts, Position: fusion.Vec2{X: x, Y: y}})
	}
	return out, nil
}

// LoadAlignedFiles reads an IMU CSV and a GPS CSV and aligns them into a
// dataset named after the GPS file.
func LoadAlignedFiles(imuPath, gpsPath string) (*Dataset, error) {
	imuFile, err := os.Open(filepath.Clean(imuPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open IMU file: %w", err)
	}
	defer imuFile.Close()
	imu, err := ReadIMUCSV(imuFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", imuPath, err)
	}

	gpsFile, err := os.Open(filepath.Clean(gpsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open GPS file: %w", err)
	}
	defer gpsFile.Close()
	gps, err := ReadGPSCSV(gpsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", gpsPath, err)
	}

	samples, err := Align(imu, gps)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(gpsPath)
	return &Dataset{Name: strings.TrimSuffix(base, filepath.Ext(base)), Samples: samples}, nil
}
