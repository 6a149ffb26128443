package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/sweep"
)

func TestDefaultFusionConfig(t *testing.T) {
	cfg := DefaultFusionConfig()

	if cfg.ProcessVariance == nil || *cfg.ProcessVariance != 1e-3 {
		t.Errorf("Expected ProcessVariance 1e-3, got %v", cfg.ProcessVariance)
	}
	if cfg.MeasurementVariance == nil || *cfg.MeasurementVariance != 1.0 {
		t.Errorf("Expected MeasurementVariance 1.0, got %v", cfg.MeasurementVariance)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if got := cfg.Params(); got != fusion.DefaultParams() {
		t.Errorf("Params() = %+v, want %+v", got, fusion.DefaultParams())
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyFusionConfig()

	if cfg.GetProcessVariance() != 1e-3 {
		t.Errorf("GetProcessVariance() = %v, want 1e-3", cfg.GetProcessVariance())
	}
	if cfg.GetMeasurementVariance() != 1.0 {
		t.Errorf("GetMeasurementVariance() = %v, want 1.0", cfg.GetMeasurementVariance())
	}
	if got, want := cfg.GetProcessVarianceRange(), (sweep.RangeSpec{Min: 1e-5, Max: 1e-1, Step: 1e-5}); got != want {
		t.Errorf("GetProcessVarianceRange() = %+v, want %+v", got, want)
	}
	if got, want := cfg.GetMeasurementVarianceRange(), (sweep.RangeSpec{Min: 0.1, Max: 5.0, Step: 0.1}); got != want {
		t.Errorf("GetMeasurementVarianceRange() = %+v, want %+v", got, want)
	}
	if cfg.GetSweepWorkers() != 4 {
		t.Errorf("GetSweepWorkers() = %d, want 4", cfg.GetSweepWorkers())
	}
	if cfg.GetPlotWidthCM() != 25 || cfg.GetPlotHeightCM() != 15 {
		t.Errorf("plot size = %vx%v, want 25x15", cfg.GetPlotWidthCM(), cfg.GetPlotHeightCM())
	}
	if cfg.GetListen() != ":8080" {
		t.Errorf("GetListen() = %q, want :8080", cfg.GetListen())
	}
	if cfg.GetDatabasePath() != "trajectory.db" {
		t.Errorf("GetDatabasePath() = %q", cfg.GetDatabasePath())
	}
}

func TestLoadFusionConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "process_variance": 0.005,
  "measurement_variance": 2.5,
  "measurement_variance_range": "0.5:3.0:0.5",
  "sweep_workers": 2
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadFusionConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetProcessVariance() != 0.005 {
		t.Errorf("Expected ProcessVariance 0.005, got %v", cfg.GetProcessVariance())
	}
	if cfg.GetMeasurementVariance() != 2.5 {
		t.Errorf("Expected MeasurementVariance 2.5, got %v", cfg.GetMeasurementVariance())
	}
	if got := cfg.GetMeasurementVarianceRange(); got.Min != 0.5 || got.Max != 3.0 || got.Step != 0.5 {
		t.Errorf("unexpected measurement range %+v", got)
	}
	if cfg.GetSweepWorkers() != 2 {
		t.Errorf("Expected SweepWorkers 2, got %d", cfg.GetSweepWorkers())
	}
	// Omitted fields fall back to defaults.
	if cfg.ProcessVarianceRange != nil {
		t.Errorf("ProcessVarianceRange should be unset, got %v", *cfg.ProcessVarianceRange)
	}
	if cfg.GetProcessVarianceRange().Min != 1e-5 {
		t.Errorf("GetProcessVarianceRange() should fall back to the default")
	}
}

func TestLoadFusionConfigMissing(t *testing.T) {
	_, err := LoadFusionConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadFusionConfigWrongExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFusionConfig(path); err == nil {
		t.Error("Expected error for non-.json extension")
	}
}

func TestLoadFusionConfigInvalid(t *testing.T) {
	cases := map[string]string{
		"bad json":            `{not json`,
		"zero process":        `{"process_variance": 0}`,
		"negative meas":       `{"measurement_variance": -1}`,
		"bad range":           `{"process_variance_range": "1:2"}`,
		"non-positive range":  `{"measurement_variance_range": "0:1:0.1"}`,
		"inverted range":      `{"measurement_variance_range": "2:1:0.1"}`,
		"zero workers":        `{"sweep_workers": 0}`,
		"negative plot width": `{"plot_width_cm": -3}`,
		"empty database":      `{"database_path": ""}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(body), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFusionConfig(path); err == nil {
				t.Errorf("Expected error for %s", name)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.Params() != fusion.DefaultParams() {
		t.Errorf("defaults file params = %+v, want %+v", cfg.Params(), fusion.DefaultParams())
	}
	if cfg.GetDatabasePath() != DefaultFusionConfig().GetDatabasePath() {
		t.Errorf("defaults file database_path = %q", cfg.GetDatabasePath())
	}
}
