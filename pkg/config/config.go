package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/unklstewy/rotse-mount/pkg/coordinates"
	"github.com/unklstewy/rotse-mount/pkg/mount"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// Config represents the complete application configuration.
type Config struct {
	Site     SiteConfig     `json:"site"`
	Pointing PointingConfig `json:"pointing"`
	Mount    MountConfig    `json:"mount"`
	Database DatabaseConfig `json:"database"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// SiteConfig contains the observatory's geographic location.
// The longitude sets the local sidereal time and the sign of the latitude
// selects the hemisphere convention of the matrix model.
type SiteConfig struct {
	// Name is a friendly identifier for this site
	Name string `json:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees, east positive
	Longitude float64 `json:"longitude"`

	// Elevation in meters above sea level
	Elevation float64 `json:"elevation"`
}

// PointingConfig selects the pointing model.
type PointingConfig struct {
	// Model is "matrix" or "interpolation"
	Model string `json:"model"`

	Matrix      MatrixConfig      `json:"matrix"`
	Calibration CalibrationConfig `json:"calibration"`
}

// MatrixConfig holds the two-star rotation calibration.
type MatrixConfig struct {
	// MatrixFile, if set, supplies the rotation and pole offset and takes
	// precedence over Rotation and PoleOffset
	MatrixFile string `json:"matrix_file,omitempty"`

	// Rotation is the 3x3 celestial-to-mount rotation matrix
	Rotation [3][3]float64 `json:"rotation"`

	// PoleOffset in degrees
	PoleOffset float64 `json:"pole_offset"`

	// Deg2Enc is the encoder counts per degree for the HA and Dec axes
	Deg2Enc [2]float64 `json:"deg2enc"`

	// ZeroPoint is the encoder reading at 0 degrees for each axis
	ZeroPoint [2]int `json:"zero_point"`

	// PointingOffset is a per-axis encoder trim
	PointingOffset [2]int `json:"pointing_offset"`
}

// CalibrationConfig selects the samples of the interpolation model.
type CalibrationConfig struct {
	// Samples are inline calibration samples
	Samples []pointing.CalibrationSample `json:"samples,omitempty"`

	// TableName, if set, loads the latest stored version of the named
	// calibration table from the database instead of Samples
	TableName string `json:"table_name,omitempty"`
}

// MountConfig contains the serial link and motion safety settings.
type MountConfig struct {
	// SerialPort is the device of the mount controller (e.g. /dev/ttyS0)
	SerialPort string `json:"serial_port"`

	// Baud is the serial line speed
	Baud int `json:"baud"`

	// CommandIntervalMS is the minimum spacing between command lines
	CommandIntervalMS int `json:"command_interval_ms"`

	// ResponseTimeoutMS is how long to wait for each response
	ResponseTimeoutMS int `json:"response_timeout_ms"`

	// MaxRetries is the number of resends on timeout or bad response.
	// Negative disables resending.
	MaxRetries int `json:"max_retries"`

	// TravelLimits bounds the encoder setpoints; 0/0 leaves an axis unlimited
	TravelLimits mount.TravelLimits `json:"travel_limits"`

	// SunAvoidanceDeg rejects targets closer than this to the sun; 0 disables
	SunAvoidanceDeg float64 `json:"sun_avoidance_deg"`

	// Simulate replaces the serial port with an in-process simulator
	Simulate bool `json:"simulate"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Enabled turns on the calibration store and slew log
	Enabled bool `json:"enabled"`

	// Driver is the database driver (postgres)
	Driver string `json:"driver"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddress serves /metrics (e.g. ":9105"); empty disables it
	ListenAddress string `json:"listen_address"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is Load for callers that name the file explicitly: a missing
// file is an error instead of a fallback to the defaults.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(path)
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns the configuration of the ROTSE-IIIc site in Namibia
// with an identity rotation.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name:      "ROTSE-IIIc",
			Latitude:  -23.272951,
			Longitude: 16.502814,
			Elevation: 1800,
		},
		Pointing: PointingConfig{
			Model: string(pointing.KindMatrix),
			Matrix: MatrixConfig{
				Rotation:       pointing.IdentityRotation(),
				PoleOffset:     0.5,
				Deg2Enc:        [2]float64{1000, 1000},
				PointingOffset: [2]int{10, 10},
			},
		},
		Mount: MountConfig{
			SerialPort:        "/dev/ttyS0",
			Baud:              9600,
			CommandIntervalMS: int(mount.DefaultCommandInterval / time.Millisecond),
			ResponseTimeoutMS: int(mount.DefaultResponseTimeout / time.Millisecond),
			MaxRetries:        mount.DefaultMaxRetries,
			SunAvoidanceDeg:   20,
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Database:     "rotse",
			Username:     "rotse",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
		Metrics: MetricsConfig{
			ListenAddress: ":9105",
		},
	}
}

// Validate checks the settings that cannot be checked later without
// touching hardware.
func (c *Config) Validate() error {
	if err := c.SiteInfo().Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	switch pointing.Kind(c.Pointing.Model) {
	case pointing.KindMatrix:
	case pointing.KindInterpolation:
		if len(c.Pointing.Calibration.Samples) == 0 && c.Pointing.Calibration.TableName == "" {
			return fmt.Errorf("pointing: interpolation model needs samples or table_name")
		}
		if c.Pointing.Calibration.TableName != "" && !c.Database.Enabled {
			return fmt.Errorf("pointing: table_name %q requires the database to be enabled", c.Pointing.Calibration.TableName)
		}
	default:
		return fmt.Errorf("pointing: %w: %q", pointing.ErrUnknownModel, c.Pointing.Model)
	}
	if err := c.Mount.TravelLimits.Validate(); err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	if c.Mount.SunAvoidanceDeg < 0 || c.Mount.SunAvoidanceDeg >= 180 {
		return fmt.Errorf("mount: sun_avoidance_deg %.1f outside [0, 180)", c.Mount.SunAvoidanceDeg)
	}
	if !c.Mount.Simulate && c.Mount.SerialPort == "" {
		return fmt.Errorf("mount: serial_port is required unless simulate is set")
	}
	return nil
}

// SiteInfo returns the site used for coordinate resolution.
func (c *Config) SiteInfo() coordinates.Site {
	return coordinates.Site{
		Name:      c.Site.Name,
		Latitude:  c.Site.Latitude,
		Longitude: c.Site.Longitude,
		Elevation: c.Site.Elevation,
	}
}

// MatrixParams assembles the matrix model calibration, reading MatrixFile
// when it is set.
func (c *Config) MatrixParams() (pointing.MatrixParams, error) {
	m := c.Pointing.Matrix
	params := pointing.MatrixParams{
		Rotation:       m.Rotation,
		PoleOffset:     m.PoleOffset,
		Gain:           m.Deg2Enc,
		ZeroPoint:      m.ZeroPoint,
		PointingOffset: m.PointingOffset,
		Latitude:       c.Site.Latitude,
	}
	if m.MatrixFile != "" {
		rot, poleOffset, err := pointing.LoadMatrixFile(m.MatrixFile)
		if err != nil {
			return pointing.MatrixParams{}, err
		}
		params.Rotation = rot
		params.PoleOffset = poleOffset
	}
	return params, nil
}

// PointingModel builds the configured pointing model. When the calibration
// is stored in the database, table must be the loaded table; otherwise it
// is ignored and may be nil.
func (c *Config) PointingModel(table *pointing.CalibrationTable) (pointing.Model, error) {
	cfg := pointing.Config{Kind: pointing.Kind(c.Pointing.Model)}
	switch cfg.Kind {
	case pointing.KindMatrix:
		params, err := c.MatrixParams()
		if err != nil {
			return nil, err
		}
		cfg.Matrix = params
	case pointing.KindInterpolation:
		if c.Pointing.Calibration.TableName != "" {
			if table == nil {
				return nil, fmt.Errorf("calibration table %q not loaded", c.Pointing.Calibration.TableName)
			}
			cfg.Calibration = *table
		} else {
			cfg.Calibration = pointing.CalibrationTable{Samples: c.Pointing.Calibration.Samples}
		}
	}
	return pointing.New(cfg)
}

// ClientOptions returns the command exchange settings.
func (c *Config) ClientOptions() mount.Options {
	return mount.Options{
		CommandInterval: time.Duration(c.Mount.CommandIntervalMS) * time.Millisecond,
		ResponseTimeout: time.Duration(c.Mount.ResponseTimeoutMS) * time.Millisecond,
		MaxRetries:      c.Mount.MaxRetries,
	}
}

// SerialConfig returns the serial link settings.
func (c *Config) SerialConfig() mount.SerialConfig {
	return mount.SerialConfig{Device: c.Mount.SerialPort, Baud: c.Mount.Baud}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("ROTSE_MOUNT_SERIAL_PORT"); port != "" {
		c.Mount.SerialPort = port
	}
	if matfile := os.Getenv("ROTSE_MOUNT_MATRIX_FILE"); matfile != "" {
		c.Pointing.Matrix.MatrixFile = matfile
	}
	if dbHost := os.Getenv("ROTSE_MOUNT_DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPassword := os.Getenv("ROTSE_MOUNT_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if addr, ok := os.LookupEnv("ROTSE_MOUNT_METRICS_ADDRESS"); ok {
		c.Metrics.ListenAddress = addr
	}
	if sim := os.Getenv("ROTSE_MOUNT_SIMULATE"); sim != "" {
		if v, err := strconv.ParseBool(sim); err == nil {
			c.Mount.Simulate = v
		}
	}
}
