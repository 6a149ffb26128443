package main

import (
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/trajectory.report/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command := args[0]
	args = args[1:]

	var err error
	switch command {
	case "run":
		err = handleRun(args, stdout, stderr)
	case "sweep":
		err = handleSweep(args, stdout, stderr)
	case "simulate":
		err = handleSimulate(args, stdout, stderr)
	case "serve":
		err = handleServe(args, stdout, stderr)
	case "runs":
		err = handleRuns(args, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}
	if err != nil {
		if err == errUsage {
			return 2
		}
		fmt.Fprintf(stderr, "trajectory %s: %v\n", command, err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `trajectory - IMU/GPS Kalman fusion toolkit

Usage: trajectory <command> [options]

Commands:
  run        Fuse a dataset and write the estimated trajectory
  sweep      Grid-search the process and measurement variances
  simulate   Generate a synthetic dataset with ground truth
  serve      Serve a dataset over HTTP for interactive re-tuning
  runs       List runs archived in a database
  version    Show version information
  help       Show this help message

Input Flags (run, sweep, serve):
  -input <file.csv>    Combined CSV: time,gps_x,gps_y,imu_acceleration_x,imu_acceleration_y
                       with optional absolute_x,absolute_y ground truth
  -imu <file.csv>      Separate IMU stream (time,ax,ay), used with -gps
  -gps <file.csv>      Separate GPS stream (time,x,y), used with -imu
  -config <file.json>  Fusion config (defaults: config/fusion.defaults.json values)

Examples:
  # Generate a noisy drive and fuse it
  trajectory simulate -output drive.csv
  trajectory run -input drive.csv -output estimate.csv -plot estimate.png

  # Find the best variances and archive every run
  trajectory sweep -input drive.csv -pv 1e-4,1e-3,1e-2 -mv 0.5:2:0.5
  trajectory run -input drive.csv -db trajectory.db -pv 1e-3 -mv 1

  # Interactive chart at http://localhost:8080/chart?pv=0.001&mv=1
  trajectory serve -input drive.csv`)
}
