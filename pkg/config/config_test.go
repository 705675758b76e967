package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/unklstewy/rotse-mount/pkg/mount"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config does not validate: %v", err)
	}

	// Site defaults
	if cfg.Site.Latitude != -23.272951 || cfg.Site.Longitude != 16.502814 {
		t.Errorf("Unexpected default site %+v", cfg.Site)
	}

	// Pointing defaults
	if cfg.Pointing.Model != "matrix" {
		t.Errorf("Expected matrix model, got %s", cfg.Pointing.Model)
	}
	if cfg.Pointing.Matrix.Rotation != pointing.IdentityRotation() {
		t.Errorf("Expected identity rotation, got %v", cfg.Pointing.Matrix.Rotation)
	}
	if cfg.Pointing.Matrix.PoleOffset != 0.5 {
		t.Errorf("Expected pole offset 0.5, got %v", cfg.Pointing.Matrix.PoleOffset)
	}

	// Mount defaults
	if cfg.Mount.Baud != 9600 {
		t.Errorf("Expected baud 9600, got %d", cfg.Mount.Baud)
	}
	if cfg.Mount.CommandIntervalMS != 100 {
		t.Errorf("Expected command interval 100ms, got %d", cfg.Mount.CommandIntervalMS)
	}

	// Database defaults
	if cfg.Database.Enabled {
		t.Error("Expected database disabled by default")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default postgres port 5432, got %d", cfg.Database.Port)
	}
}

// TestLoadNonExistentFile tests that Load returns default config when file doesn't exist.
func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("Expected no error for non-existent file, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config, got nil")
	}
	if cfg.Site.Name != "ROTSE-IIIc" {
		t.Error("Did not get default config for non-existent file")
	}
}

// TestLoadFileRequiresFile tests that an explicitly named file must exist.
func TestLoadFileRequiresFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")
	if _, err := LoadFile(missing); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile(missing) error = %v, want os.ErrNotExist", err)
	}

	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(configPath, []byte(`{"mount": {"simulate": true}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.Mount.Simulate {
		t.Error("LoadFile did not read the file")
	}
}

// TestLoadPartialConfig tests that fields absent from the file keep their defaults.
func TestLoadPartialConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.json")
	data := `{"site": {"name": "test", "latitude": 35.0, "longitude": -106.6}, "mount": {"simulate": true}}`
	if err := os.WriteFile(configPath, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Site.Latitude != 35.0 || !cfg.Mount.Simulate {
		t.Errorf("File values not applied: %+v %+v", cfg.Site, cfg.Mount)
	}
	if cfg.Pointing.Matrix.Deg2Enc != [2]float64{1000, 1000} {
		t.Errorf("Expected default deg2enc, got %v", cfg.Pointing.Matrix.Deg2Enc)
	}
}

// TestLoadInvalidJSON tests that Load rejects malformed files.
func TestLoadInvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(configPath, []byte("{ invalid json }"), 0644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("Expected parse error, got: %v", err)
	}
}

// TestSaveConfig tests saving and reloading configuration.
func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.json")

	cfg := DefaultConfig()
	cfg.Site.Name = "Test Save"
	cfg.Pointing.Model = "interpolation"
	cfg.Pointing.Calibration.Samples = []pointing.CalibrationSample{
		{HourAngle: -69.997, Declination: -14.565, Encoder: pointing.EncoderPair{X: 1853086, Y: 1299012}},
		{HourAngle: 70.912, Declination: -10.56, Encoder: pointing.EncoderPair{X: -1582589, Y: 1355807}},
		{HourAngle: -2.389, Declination: 30.733, Encoder: pointing.EncoderPair{X: 194421, Y: 2166675}},
	}
	cfg.Mount.TravelLimits = mount.TravelLimits{MinX: -2000000, MaxX: 2000000}

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("Round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

// TestEnvironmentOverrides tests environment variable overrides.
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ROTSE_MOUNT_SERIAL_PORT", "/dev/ttyUSB3")
	t.Setenv("ROTSE_MOUNT_DB_HOST", "env-db-host")
	t.Setenv("ROTSE_MOUNT_DB_PASSWORD", "env-password")
	t.Setenv("ROTSE_MOUNT_METRICS_ADDRESS", "")
	t.Setenv("ROTSE_MOUNT_SIMULATE", "true")

	configPath := filepath.Join(t.TempDir(), "config.json")
	testCfg := DefaultConfig()
	testCfg.Database.Password = "original-password"
	data, err := json.Marshal(testCfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Mount.SerialPort != "/dev/ttyUSB3" {
		t.Errorf("Expected serial port from env, got %s", cfg.Mount.SerialPort)
	}
	if cfg.Database.Host != "env-db-host" {
		t.Errorf("Expected env-db-host from env, got %s", cfg.Database.Host)
	}
	if cfg.Database.Password != "env-password" {
		t.Errorf("Expected env-password from env, got %s", cfg.Database.Password)
	}
	if cfg.Metrics.ListenAddress != "" {
		t.Errorf("Expected metrics disabled from env, got %q", cfg.Metrics.ListenAddress)
	}
	if !cfg.Mount.Simulate {
		t.Error("Expected simulate from env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"bad latitude", func(c *Config) { c.Site.Latitude = 91 }, "site"},
		{"unknown model", func(c *Config) { c.Pointing.Model = "spline" }, "unknown pointing model"},
		{"interpolation without samples", func(c *Config) { c.Pointing.Model = "interpolation" }, "needs samples"},
		{"table without database", func(c *Config) {
			c.Pointing.Model = "interpolation"
			c.Pointing.Calibration.TableName = "rotse3c"
		}, "database"},
		{"inverted limits", func(c *Config) { c.Mount.TravelLimits = mount.TravelLimits{MinY: 5, MaxY: -5} }, "min_y"},
		{"no serial port", func(c *Config) { c.Mount.SerialPort = "" }, "serial_port"},
		{"negative sun avoidance", func(c *Config) { c.Mount.SunAvoidanceDeg = -1 }, "sun_avoidance_deg"},
		{"simulated without serial port", func(c *Config) {
			c.Mount.SerialPort = ""
			c.Mount.Simulate = true
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMatrixParamsFromFile(t *testing.T) {
	matPath := filepath.Join(t.TempDir(), "matfile")
	contents := "0.25\n0 1 0\n-1 0 0\n0 0 1\n"
	if err := os.WriteFile(matPath, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Pointing.Matrix.MatrixFile = matPath
	params, err := cfg.MatrixParams()
	if err != nil {
		t.Fatalf("MatrixParams: %v", err)
	}

	want := pointing.MatrixParams{
		Rotation:       [3][3]float64{{0, 1, 0}, {-1, 0, 0}, {0, 0, 1}},
		PoleOffset:     0.25,
		Gain:           [2]float64{1000, 1000},
		PointingOffset: [2]int{10, 10},
		Latitude:       cfg.Site.Latitude,
	}
	if diff := cmp.Diff(want, params); diff != "" {
		t.Errorf("MatrixParams mismatch (-want +got):\n%s", diff)
	}

	cfg.Pointing.Matrix.MatrixFile = filepath.Join(t.TempDir(), "missing")
	if _, err := cfg.MatrixParams(); err == nil {
		t.Error("MatrixParams succeeded with a missing matrix file")
	}
}

func TestPointingModel(t *testing.T) {
	cfg := DefaultConfig()
	m, err := cfg.PointingModel(nil)
	if err != nil {
		t.Fatalf("PointingModel: %v", err)
	}
	if m.Kind() != pointing.KindMatrix {
		t.Errorf("Kind() = %s, want matrix", m.Kind())
	}

	cfg.Pointing.Model = "interpolation"
	cfg.Pointing.Calibration.TableName = "rotse3c"
	if _, err := cfg.PointingModel(nil); err == nil {
		t.Error("PointingModel succeeded without the stored table")
	}

	table := &pointing.CalibrationTable{Name: "rotse3c", Version: 2, Samples: []pointing.CalibrationSample{
		{HourAngle: 0, Declination: 0, Encoder: pointing.EncoderPair{X: 0, Y: 0}},
		{HourAngle: 10, Declination: 0, Encoder: pointing.EncoderPair{X: 10000, Y: 0}},
		{HourAngle: 0, Declination: 10, Encoder: pointing.EncoderPair{X: 0, Y: 10000}},
	}}
	m, err = cfg.PointingModel(table)
	if err != nil {
		t.Fatalf("PointingModel: %v", err)
	}
	if m.Kind() != pointing.KindInterpolation {
		t.Errorf("Kind() = %s, want interpolation", m.Kind())
	}

	cfg.Pointing.Model = "bogus"
	if _, err := cfg.PointingModel(nil); !errors.Is(err, pointing.ErrUnknownModel) {
		t.Errorf("PointingModel error = %v, want ErrUnknownModel", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mount.CommandIntervalMS = 250
	cfg.Mount.ResponseTimeoutMS = 2000
	cfg.Mount.MaxRetries = -1

	want := mount.Options{
		CommandInterval: 250 * time.Millisecond,
		ResponseTimeout: 2 * time.Second,
		MaxRetries:      -1,
	}
	if diff := cmp.Diff(want, cfg.ClientOptions()); diff != "" {
		t.Errorf("ClientOptions mismatch (-want +got):\n%s", diff)
	}
}
