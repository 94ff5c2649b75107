// Package config loads prospector settings from defaults, an optional YAML
// file, environment variables and command-line flags, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Config keys.
const (
	KeyAddress           = "address"
	KeyPort              = "port"
	KeyInstanceID        = "instance_id"
	KeyGridSizeX         = "grid_size_x"
	KeyGridSizeY         = "grid_size_y"
	KeyGridOffsetX       = "grid_offset_x"
	KeyGridOffsetY       = "grid_offset_y"
	KeyPartsX            = "parts_x"
	KeyPartsY            = "parts_y"
	KeyStep              = "step"
	KeySearchConcurrency = "search_concurrency"
	KeyDigConcurrency    = "dig_concurrency"
	KeyMaxPendingDigs    = "max_pending_digs"
	KeyCashConcurrency   = "cash_concurrency"
	KeyMaxLicenses       = "max_licenses"
	KeyChargeNotFound    = "charge_not_found"
	KeyFailedDigPolicy   = "failed_dig_policy"
	KeyCashDepthPriority = "cash_depth_priority"
	KeyRateLimit         = "rate_limit"
	KeyRequestTimeout    = "request_timeout"
	KeyStatsInterval     = "stats_interval"
	KeyFatalPause        = "fatal_pause"
	KeyJournalPath       = "journal_path"
	KeyMetricsAddr       = "metrics_addr"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
)

// envNames maps keys to the environment variables that set them.
var envNames = map[string]string{
	KeyAddress:           "ADDRESS",
	KeyPort:              "PORT",
	KeyInstanceID:        "INSTANCE_ID",
	KeyGridSizeX:         "GRID_SIZE_X",
	KeyGridSizeY:         "GRID_SIZE_Y",
	KeyGridOffsetX:       "GRID_OFFSET_X",
	KeyGridOffsetY:       "GRID_OFFSET_Y",
	KeyPartsX:            "PARTS_X",
	KeyPartsY:            "PARTS_Y",
	KeyStep:              "STEP",
	KeySearchConcurrency: "SEARCH_CONCURRENCY",
	KeyDigConcurrency:    "DIG_CONCURRENCY",
	KeyMaxPendingDigs:    "MAX_PDIG_SIZE",
	KeyCashConcurrency:   "CASH_CONCURRENCY",
	KeyMaxLicenses:       "MAX_LICENSES",
	KeyChargeNotFound:    "CHARGE_NOT_FOUND",
	KeyFailedDigPolicy:   "FAILED_DIG_POLICY",
	KeyCashDepthPriority: "CASH_DEPTH_PRIORITY",
	KeyRateLimit:         "RATE_LIMIT",
	KeyRequestTimeout:    "REQUEST_TIMEOUT",
	KeyStatsInterval:     "STATS_INTERVAL",
	KeyFatalPause:        "FATAL_PAUSE",
	KeyJournalPath:       "JOURNAL_PATH",
	KeyMetricsAddr:       "METRICS_ADDR",
	KeyLogLevel:          "LOG_LEVEL",
	KeyLogFormat:         "LOG_FORMAT",
}

// Failed-dig policy names.
const (
	PolicyDeeper = "deeper"
	PolicyDrop   = "drop"
)

// Config validation errors.
var (
	ErrAddressMissing     = errors.New("address must be set")
	ErrPortInvalid        = errors.New("port must be between 1 and 65535")
	ErrGridInvalid        = errors.New("grid size must be positive")
	ErrPartsInvalid       = errors.New("parts must be positive and no larger than the grid")
	ErrInstanceInvalid    = errors.New("instance id out of range")
	ErrStepInvalid        = errors.New("step must be positive")
	ErrConcurrencyInvalid = errors.New("concurrency must be positive")
	ErrPolicyUnknown      = errors.New("unknown failed dig policy")
	ErrLogFormatUnknown   = errors.New("unknown log format")
)

// Config holds every prospector setting.
type Config struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	InstanceID int    `yaml:"instance_id"`

	GridSizeX   int `yaml:"grid_size_x"`
	GridSizeY   int `yaml:"grid_size_y"`
	GridOffsetX int `yaml:"grid_offset_x"`
	GridOffsetY int `yaml:"grid_offset_y"`
	PartsX      int `yaml:"parts_x"`
	PartsY      int `yaml:"parts_y"`
	Step        int `yaml:"step"`

	SearchConcurrency int `yaml:"search_concurrency"`
	DigConcurrency    int `yaml:"dig_concurrency"`
	MaxPendingDigs    int `yaml:"max_pending_digs"`
	CashConcurrency   int `yaml:"cash_concurrency"`
	MaxLicenses       int `yaml:"max_licenses"`

	ChargeNotFound    bool   `yaml:"charge_not_found"`
	FailedDigPolicy   string `yaml:"failed_dig_policy"`
	CashDepthPriority bool   `yaml:"cash_depth_priority"`

	RateLimit      float64       `yaml:"rate_limit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StatsInterval  time.Duration `yaml:"stats_interval"`
	FatalPause     time.Duration `yaml:"fatal_pause"`

	JournalPath string `yaml:"journal_path"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Default returns the built-in settings. Address is left empty.
func Default() Config {
	return Config{
		Port:              8000,
		GridSizeX:         3500,
		GridSizeY:         3500,
		PartsX:            2,
		PartsY:            2,
		Step:              125,
		SearchConcurrency: 3,
		DigConcurrency:    5,
		MaxPendingDigs:    10,
		CashConcurrency:   10,
		MaxLicenses:       2,
		ChargeNotFound:    true,
		FailedDigPolicy:   PolicyDeeper,
		CashDepthPriority: true,
		RateLimit:         140,
		StatsInterval:     30 * time.Second,
		FatalPause:        time.Second,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// NewViper returns a viper instance with defaults and environment bindings
// registered for every key.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	defaults := map[string]any{
		KeyPort:              d.Port,
		KeyInstanceID:        d.InstanceID,
		KeyGridSizeX:         d.GridSizeX,
		KeyGridSizeY:         d.GridSizeY,
		KeyGridOffsetX:       d.GridOffsetX,
		KeyGridOffsetY:       d.GridOffsetY,
		KeyPartsX:            d.PartsX,
		KeyPartsY:            d.PartsY,
		KeyStep:              d.Step,
		KeySearchConcurrency: d.SearchConcurrency,
		KeyDigConcurrency:    d.DigConcurrency,
		KeyMaxPendingDigs:    d.MaxPendingDigs,
		KeyCashConcurrency:   d.CashConcurrency,
		KeyMaxLicenses:       d.MaxLicenses,
		KeyChargeNotFound:    d.ChargeNotFound,
		KeyFailedDigPolicy:   d.FailedDigPolicy,
		KeyCashDepthPriority: d.CashDepthPriority,
		KeyRateLimit:         d.RateLimit,
		KeyRequestTimeout:    d.RequestTimeout,
		KeyStatsInterval:     d.StatsInterval,
		KeyFatalPause:        d.FatalPause,
		KeyLogLevel:          d.LogLevel,
		KeyLogFormat:         d.LogFormat,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, env := range envNames {
		// BindEnv only fails without a key.
		_ = v.BindEnv(key, env)
	}
	return v
}

// ReadFile merges the YAML file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// FromViper builds a Config from the merged settings in v.
func FromViper(v *viper.Viper) Config {
	return Config{
		Address:           v.GetString(KeyAddress),
		Port:              v.GetInt(KeyPort),
		InstanceID:        v.GetInt(KeyInstanceID),
		GridSizeX:         v.GetInt(KeyGridSizeX),
		GridSizeY:         v.GetInt(KeyGridSizeY),
		GridOffsetX:       v.GetInt(KeyGridOffsetX),
		GridOffsetY:       v.GetInt(KeyGridOffsetY),
		PartsX:            v.GetInt(KeyPartsX),
		PartsY:            v.GetInt(KeyPartsY),
		Step:              v.GetInt(KeyStep),
		SearchConcurrency: v.GetInt(KeySearchConcurrency),
		DigConcurrency:    v.GetInt(KeyDigConcurrency),
		MaxPendingDigs:    v.GetInt(KeyMaxPendingDigs),
		CashConcurrency:   v.GetInt(KeyCashConcurrency),
		MaxLicenses:       v.GetInt(KeyMaxLicenses),
		ChargeNotFound:    v.GetBool(KeyChargeNotFound),
		FailedDigPolicy:   v.GetString(KeyFailedDigPolicy),
		CashDepthPriority: v.GetBool(KeyCashDepthPriority),
		RateLimit:         v.GetFloat64(KeyRateLimit),
		RequestTimeout:    v.GetDuration(KeyRequestTimeout),
		StatsInterval:     v.GetDuration(KeyStatsInterval),
		FatalPause:        v.GetDuration(KeyFatalPause),
		JournalPath:       v.GetString(KeyJournalPath),
		MetricsAddr:       v.GetString(KeyMetricsAddr),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
	}
}

// Load reads defaults, the optional file at path and the environment.
func Load(path string) (Config, error) {
	v := NewViper()
	if err := ReadFile(v, path); err != nil {
		return Config{}, err
	}
	return FromViper(v), nil
}

// Grid returns the whole search area.
func (c Config) Grid() types.Area {
	return types.Area{PosX: c.GridOffsetX, PosY: c.GridOffsetY, SizeX: c.GridSizeX, SizeY: c.GridSizeY}
}

// Instances returns the number of partitions.
func (c Config) Instances() int { return c.PartsX * c.PartsY }

// Validate checks the settings that do not need a server. It returns a
// sentinel error from this package on failure.
func (c Config) Validate() error {
	if err := c.ValidateGrid(); err != nil {
		return err
	}
	if c.Address == "" {
		return ErrAddressMissing
	}
	if c.Port < 1 || c.Port > 65535 {
		return ErrPortInvalid
	}
	if c.InstanceID < 0 || c.InstanceID >= c.Instances() {
		return fmt.Errorf("%w: %d of %d", ErrInstanceInvalid, c.InstanceID, c.Instances())
	}
	for _, n := range []int{c.SearchConcurrency, c.DigConcurrency, c.CashConcurrency, c.MaxLicenses, c.MaxPendingDigs} {
		if n < 1 {
			return ErrConcurrencyInvalid
		}
	}
	switch c.FailedDigPolicy {
	case PolicyDeeper, PolicyDrop:
	default:
		return fmt.Errorf("%w: %q", ErrPolicyUnknown, c.FailedDigPolicy)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrLogFormatUnknown, c.LogFormat)
	}
	return nil
}

// ValidateGrid checks only the grid layout, which offline commands need.
func (c Config) ValidateGrid() error {
	if c.GridSizeX < 1 || c.GridSizeY < 1 {
		return ErrGridInvalid
	}
	if c.PartsX < 1 || c.PartsY < 1 || c.PartsX > c.GridSizeX || c.PartsY > c.GridSizeY {
		return ErrPartsInvalid
	}
	if c.Step < 1 {
		return ErrStepInvalid
	}
	return nil
}

// WriteFile writes c as YAML to path, creating its directory. An existing
// file is left untouched and reported as false.
func WriteFile(path string, c Config) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
