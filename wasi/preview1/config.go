package preview1

import (
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
)

// Config describes the environment of one guest instance. Use the builder
// methods to set it up; the zero value from NewConfig inherits the host's
// standard streams, an empty argument vector and environment, and roots
// both directory preopens at the process start directory.
type Config struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	logger      *zap.Logger
	rootDir     string
	args        []string
	env         []string
	allowSystem bool
}

// NewConfig creates a configuration with default settings.
func NewConfig() *Config {
	return &Config{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		allowSystem: true,
	}
}

// WithArgs sets the argument vector. args[0] is the program name.
func (c *Config) WithArgs(args ...string) *Config {
	c.args = args
	return c
}

// WithEnv replaces the environment with the entries of env, sorted by key.
func (c *Config) WithEnv(env map[string]string) *Config {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c.env = make([]string, 0, len(keys))
	for _, k := range keys {
		c.env = append(c.env, k+"="+env[k])
	}
	return c
}

// WithEnviron replaces the environment with KEY=VALUE entries, in order.
func (c *Config) WithEnviron(environ []string) *Config {
	c.env = append([]string(nil), environ...)
	return c
}

// WithStdin sets the guest's standard input. An *os.File is used through
// its host descriptor; any other reader is read directly.
func (c *Config) WithStdin(r io.Reader) *Config {
	c.stdin = r
	return c
}

// WithStdout sets the guest's standard output.
func (c *Config) WithStdout(w io.Writer) *Config {
	c.stdout = w
	return c
}

// WithStderr sets the guest's standard error.
func (c *Config) WithStderr(w io.Writer) *Config {
	c.stderr = w
	return c
}

// WithRootDir sets the host directory behind the "/" and "./" preopens.
func (c *Config) WithRootDir(dir string) *Config {
	c.rootDir = dir
	return c
}

// WithLogger sets the logger of bridges created from this configuration.
func (c *Config) WithLogger(l *zap.Logger) *Config {
	c.logger = l
	return c
}

// WithSystem enables or disables the ashell_system extension.
func (c *Config) WithSystem(enabled bool) *Config {
	c.allowSystem = enabled
	return c
}

// Args returns the configured argument vector.
func (c *Config) Args() []string {
	return c.args
}

// Environ returns the configured environment.
func (c *Config) Environ() []string {
	return c.env
}

// RootDir returns the configured root, or "" for the start directory.
func (c *Config) RootDir() string {
	return c.rootDir
}

// Stdio returns the configured standard streams.
func (c *Config) Stdio() Stdio {
	return Stdio{Stdin: c.stdin, Stdout: c.stdout, Stderr: c.stderr}
}
