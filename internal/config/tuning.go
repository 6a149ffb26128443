package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/sweep"
)

// DefaultConfigPath is the path to the canonical fusion defaults file.
const DefaultConfigPath = "config/fusion.defaults.json"

// Built-in defaults used by the Get* accessors when a field is omitted.
const (
	defaultProcessVariance          = 1e-3
	defaultMeasurementVariance      = 1.0
	defaultProcessVarianceRange     = "1e-5:1e-1:1e-5"
	defaultMeasurementVarianceRange = "0.1:5.0:0.1"
	defaultSweepWorkers             = 4
	defaultPlotWidthCM              = 25.0
	defaultPlotHeightCM             = 15.0
	defaultListen                   = ":8080"
	defaultDatabasePath             = "trajectory.db"
)

// FusionConfig represents the root configuration for the fusion tools.
// The variance fields match the /api/run request body so the same JSON
// can be used for both startup configuration and runtime re-tuning.
type FusionConfig struct {
	// Filter params
	ProcessVariance     *float64 `json:"process_variance,omitempty"`
	MeasurementVariance *float64 `json:"measurement_variance,omitempty"`

	// Re-tuning ranges, "min:max:step"
	ProcessVarianceRange     *string `json:"process_variance_range,omitempty"`
	MeasurementVarianceRange *string `json:"measurement_variance_range,omitempty"`
	SweepWorkers             *int    `json:"sweep_workers,omitempty"`

	// Report params
	PlotWidthCM  *float64 `json:"plot_width_cm,omitempty"`
	PlotHeightCM *float64 `json:"plot_height_cm,omitempty"`

	// Service params
	Listen       *string `json:"listen,omitempty"`
	DatabasePath *string `json:"database_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFusionConfig returns a FusionConfig with all fields set to nil.
func EmptyFusionConfig() *FusionConfig {
	return &FusionConfig{}
}

// DefaultFusionConfig returns a FusionConfig with every field populated
// from the built-in defaults.
func DefaultFusionConfig() *FusionConfig {
	return &FusionConfig{
		ProcessVariance:          ptrFloat64(defaultProcessVariance),
		MeasurementVariance:      ptrFloat64(defaultMeasurementVariance),
		ProcessVarianceRange:     ptrString(defaultProcessVarianceRange),
		MeasurementVarianceRange: ptrString(defaultMeasurementVarianceRange),
		SweepWorkers:             ptrInt(defaultSweepWorkers),
		PlotWidthCM:              ptrFloat64(defaultPlotWidthCM),
		PlotHeightCM:             ptrFloat64(defaultPlotHeightCM),
		Listen:                   ptrString(defaultListen),
		DatabasePath:             ptrString(defaultDatabasePath),
	}
}

// LoadFusionConfig loads a FusionConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the built-in defaults, so
// partial configs are safe.
func LoadFusionConfig(path string) (*FusionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFusionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *FusionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/trajectory/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFusionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *FusionConfig) Validate() error {
	if c.ProcessVariance != nil {
		if err := checkVariance("process_variance", *c.ProcessVariance); err != nil {
			return err
		}
	}
	if c.MeasurementVariance != nil {
		if err := checkVariance("measurement_variance", *c.MeasurementVariance); err != nil {
			return err
		}
	}

	if c.ProcessVarianceRange != nil {
		if err := checkVarianceRange("process_variance_range", *c.ProcessVarianceRange); err != nil {
			return err
		}
	}
	if c.MeasurementVarianceRange != nil {
		if err := checkVarianceRange("measurement_variance_range", *c.MeasurementVarianceRange); err != nil {
			return err
		}
	}

	if c.SweepWorkers != nil && *c.SweepWorkers < 1 {
		return fmt.Errorf("sweep_workers must be at least 1, got %d", *c.SweepWorkers)
	}
	if c.PlotWidthCM != nil && !(*c.PlotWidthCM > 0) {
		return fmt.Errorf("plot_width_cm must be positive, got %f", *c.PlotWidthCM)
	}
	if c.PlotHeightCM != nil && !(*c.PlotHeightCM > 0) {
		return fmt.Errorf("plot_height_cm must be positive, got %f", *c.PlotHeightCM)
	}
	if c.DatabasePath != nil && *c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}

	return nil
}

func checkVariance(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%s must be finite and positive, got %v", name, v)
	}
	return nil
}

func checkVarianceRange(name, s string) error {
	spec, err := sweep.ParseRangeSpec(s)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, s, err)
	}
	if spec.Min <= 0 {
		return fmt.Errorf("%s minimum must be positive, got %v", name, spec.Min)
	}
	if spec.Max < spec.Min {
		return fmt.Errorf("%s maximum %v is below minimum %v", name, spec.Max, spec.Min)
	}
	return nil
}

// GetProcessVariance returns the process_variance value or the default.
func (c *FusionConfig) GetProcessVariance() float64 {
	if c.ProcessVariance == nil {
		return defaultProcessVariance
	}
	return *c.ProcessVariance
}

// GetMeasurementVariance returns the measurement_variance value or the default.
func (c *FusionConfig) GetMeasurementVariance() float64 {
	if c.MeasurementVariance == nil {
		return defaultMeasurementVariance
	}
	return *c.MeasurementVariance
}

// Params returns the filter variances as fusion.Params.
func (c *FusionConfig) Params() fusion.Params {
	return fusion.Params{
		ProcessVariance:     c.GetProcessVariance(),
		MeasurementVariance: c.GetMeasurementVariance(),
	}
}

// GetProcessVarianceRange parses and returns the process variance sweep range.
func (c *FusionConfig) GetProcessVarianceRange() sweep.RangeSpec {
	return rangeOrDefault(c.ProcessVarianceRange, defaultProcessVarianceRange)
}

// GetMeasurementVarianceRange parses and returns the measurement variance sweep range.
func (c *FusionConfig) GetMeasurementVarianceRange() sweep.RangeSpec {
	return rangeOrDefault(c.MeasurementVarianceRange, defaultMeasurementVarianceRange)
}

func rangeOrDefault(s *string, def string) sweep.RangeSpec {
	if s != nil && *s != "" {
		if spec, err := sweep.ParseRangeSpec(*s); err == nil {
			return spec
		}
	}
	spec, _ := sweep.ParseRangeSpec(def)
	return spec
}

// GetSweepWorkers returns the sweep_workers value or the default.
func (c *FusionConfig) GetSweepWorkers() int {
	if c.SweepWorkers == nil {
		return defaultSweepWorkers
	}
	return *c.SweepWorkers
}

// GetPlotWidthCM returns the plot_width_cm value or the default.
func (c *FusionConfig) GetPlotWidthCM() float64 {
	if c.PlotWidthCM == nil {
		return defaultPlotWidthCM
	}
	return *c.PlotWidthCM
}

// GetPlotHeightCM returns the plot_height_cm value or the default.
func (c *FusionConfig) GetPlotHeightCM() float64 {
	if c.PlotHeightCM == nil {
		return defaultPlotHeightCM
	}
	return *c.PlotHeightCM
}

// GetListen returns the listen address or the default.
func (c *FusionConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return defaultListen
	}
	return *c.Listen
}

// GetDatabasePath returns the database_path value or the default.
func (c *FusionConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return defaultDatabasePath
	}
	return *c.DatabasePath
}
