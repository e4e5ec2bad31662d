// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting launcher configuration.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is the config file read when --config is not given.
	DefaultConfigPath = "detrun.yaml"
	// EnvPrefix prefixes environment variables that override config keys.
	EnvPrefix = "DETRUN"
	// defaultPython is the interpreter used to start the training program.
	defaultPython = "python"
	// defaultEntrypoint is the training program's script.
	defaultEntrypoint = "main.py"
	// defaultLogFile is where the launcher writes its own log.
	defaultLogFile = "detrun.log"
	// defaultMetricsFile is where run statistics are kept when metrics are enabled.
	defaultMetricsFile = "reports/data/run_metrics.json"
	// defaultStopGrace is how long a cancelled run may take to exit after the interrupt.
	defaultStopGrace = 10 * time.Second
)

// Config represents the top-level launcher configuration.
type Config struct {
	Debug            bool                           `json:"debug" mapstructure:"debug"`
	JSONMode         bool                           `json:"jsonMode" mapstructure:"jsonMode"`
	LogFile          string                         `json:"logFile,omitempty" mapstructure:"logFile"`
	Python           string                         `json:"python,omitempty" mapstructure:"python"`
	PythonArgs       []string                       `json:"pythonArgs,omitempty" mapstructure:"pythonArgs"`
	Entrypoint       string                         `json:"entrypoint,omitempty" mapstructure:"entrypoint"`
	Workdir          string                         `json:"workdir,omitempty" mapstructure:"workdir"`
	Env              []string                       `json:"env,omitempty" mapstructure:"env"`
	StopGraceSeconds int                            `json:"stopGraceSeconds,omitempty" mapstructure:"stopGraceSeconds"`
	Metrics          bool                           `json:"metrics" mapstructure:"metrics"`
	MetricsFile      string                         `json:"metricsFile,omitempty" mapstructure:"metricsFile"`
	Preset           string                         `json:"preset,omitempty" mapstructure:"preset"`
	Run              runconfig.RunConfig            `json:"run" mapstructure:"run"`
	Presets          map[string]runconfig.RunConfig `json:"presets,omitempty" mapstructure:"presets"`
	ConfigPath       string                         `json:"-" mapstructure:"-"`
}

// PythonPath returns the interpreter, applying a default if not set.
func (c Config) PythonPath() string {
	if p := strings.TrimSpace(c.Python); p != "" {
		return p
	}
	return defaultPython
}

// EntrypointPath returns the training script, applying a default if not set.
func (c Config) EntrypointPath() string {
	if p := strings.TrimSpace(c.Entrypoint); p != "" {
		return p
	}
	return defaultEntrypoint
}

// LogFilePath returns the path to the launcher log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := strings.TrimSpace(c.LogFile); path != "" {
		return path
	}
	return defaultLogFile
}

// MetricsFilePath returns the run statistics file, applying a default if not set.
func (c Config) MetricsFilePath() string {
	if path := strings.TrimSpace(c.MetricsFile); path != "" {
		return path
	}
	return defaultMetricsFile
}

// StopGrace returns how long to wait after interrupting a cancelled run
// before killing it.
func (c Config) StopGrace() time.Duration {
	if c.StopGraceSeconds <= 0 {
		return defaultStopGrace
	}
	return time.Duration(c.StopGraceSeconds) * time.Second
}

// EnvMap parses the KEY=VALUE entries of Env. Later entries win.
func (c Config) EnvMap() (map[string]string, error) {
	out := make(map[string]string, len(c.Env))
	for _, entry := range c.Env {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("env entry %q must look like KEY=VALUE", entry)
		}
		out[key] = value
	}
	return out, nil
}

// EnvKeys returns the configured environment variable names, sorted.
func (c Config) EnvKeys() []string {
	env, err := c.EnvMap()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveRun builds the run configuration for this invocation: the named
// preset (if any), then the config file's run block, then override.
func (c Config) ResolveRun(preset string, override runconfig.RunConfig) (runconfig.RunConfig, error) {
	if strings.TrimSpace(preset) == "" {
		preset = c.Preset
	}
	var base runconfig.RunConfig
	if strings.TrimSpace(preset) != "" {
		p, err := runconfig.Preset(preset, c.Presets)
		if err != nil {
			return runconfig.RunConfig{}, err
		}
		base = p
	}
	return base.Merge(c.Run).Merge(override), nil
}

// SetDefaults registers the launcher defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("jsonMode", false)
	v.SetDefault("metrics", false)
	v.SetDefault("python", defaultPython)
	v.SetDefault("entrypoint", defaultEntrypoint)
	v.SetDefault("stopGraceSeconds", int(defaultStopGrace.Seconds()))
}

// FromViper materializes the merged viper state into a Config.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if _, err := cfg.EnvMap(); err != nil {
		return Config{}, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	return cfg, nil
}

// Load reads the launcher configuration from path. The format follows the
// file extension (json, yaml, toml).
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	return FromViper(v)
}
