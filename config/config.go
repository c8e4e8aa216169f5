// Package config loads the wasi-run settings from a YAML file, the
// environment and command-line overrides.
package config

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasi-bridge/errors"
	"github.com/wippyai/wasi-bridge/wasi/preview1"
)

// Environment variables overriding the file.
const (
	EnvRoot      = "WASI_RUN_ROOT"
	EnvLogLevel  = "WASI_RUN_LOG_LEVEL"
	EnvLogFormat = "WASI_RUN_LOG_FORMAT"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config defines the settings of one guest run.
type Config struct {
	Env              map[string]string `yaml:"env"`
	AllowSystem      *bool             `yaml:"allowSystem"`
	Root             string            `yaml:"root"`
	LogLevel         string            `yaml:"logLevel"`
	LogFormat        string            `yaml:"logFormat"`
	CacheDir         string            `yaml:"cacheDir"`
	Args             []string          `yaml:"args"`
	MemoryLimitPages uint32            `yaml:"memoryLimitPages"`
	InheritEnv       bool              `yaml:"inheritEnv"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		LogLevel:  "warn",
		LogFormat: FormatConsole,
	}
}

// Load reads path, when not empty, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.ConfigInvalid("file", "read config file", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects keys the Config does not know.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.ConfigInvalid("file", "parse config", err)
	}
	return nil
}

// ApplyEnv overrides settings from WASI_RUN_* variables.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvRoot); ok && v != "" {
		c.Root = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok && v != "" {
		c.LogFormat = v
	}
}

// SetEnv adds KEY=VALUE assignments, as given on the command line.
func (c *Config) SetEnv(assignments []string) error {
	for _, a := range assignments {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return errors.ConfigInvalid("env", "expected KEY=VALUE, got "+a, nil)
		}
		if c.Env == nil {
			c.Env = make(map[string]string)
		}
		c.Env[k] = v
	}
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.ConfigInvalid("logLevel", "unknown level "+c.LogLevel, err)
	}
	switch c.LogFormat {
	case FormatJSON, FormatConsole:
	default:
		return errors.ConfigInvalid("logFormat", "expected json or console, got "+c.LogFormat, nil)
	}
	for k := range c.Env {
		if !preview1.ValidEnvName(k) {
			return errors.ConfigInvalid("env", "invalid variable name "+k, nil)
		}
	}
	if c.Root != "" {
		fi, err := os.Stat(c.Root)
		if err != nil {
			return errors.ConfigInvalid("root", "root directory unavailable", err)
		}
		if !fi.IsDir() {
			return errors.ConfigInvalid("root", c.Root+" is not a directory", nil)
		}
	}
	return nil
}

// SystemAllowed reports whether ashell_system may run commands. On unless
// disabled.
func (c *Config) SystemAllowed() bool {
	return c.AllowSystem == nil || *c.AllowSystem
}

// Environ returns the guest environment: the host environment when
// inherited, then the configured variables in key order.
func (c *Config) Environ() []string {
	var environ []string
	seen := make(map[string]int)
	if c.InheritEnv {
		for _, kv := range os.Environ() {
			k, _, _ := strings.Cut(kv, "=")
			seen[k] = len(environ)
			environ = append(environ, kv)
		}
	}

	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv := k + "=" + c.Env[k]
		if i, ok := seen[k]; ok {
			environ[i] = kv
			continue
		}
		environ = append(environ, kv)
	}
	return environ
}

// Bridge builds the instance configuration. args replaces the configured
// argument vector when not empty.
func (c *Config) Bridge(args ...string) *preview1.Config {
	if len(args) == 0 {
		args = c.Args
	}
	return preview1.NewConfig().
		WithArgs(args...).
		WithEnviron(c.Environ()).
		WithRootDir(c.Root).
		WithSystem(c.SystemAllowed())
}

// Logger builds a zap logger for the configured level and format.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.ConfigInvalid("logLevel", "unknown level "+c.LogLevel, err)
	}

	zc := zap.NewDevelopmentConfig()
	if c.LogFormat == FormatJSON {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	log, err := zc.Build()
	if err != nil {
		return nil, errors.ConfigInvalid("logFormat", "build logger", err)
	}
	return log, nil
}
