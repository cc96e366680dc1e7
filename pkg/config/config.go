// Package config loads the optional YAML configuration file.
//
// Every field is optional; missing fields keep their defaults:
//
//	connect:
//	  attempts: 50
//	  attempt_timeout: 300ms
//	  retry_delay: 0s
//	io_timeout: 200ms
//	settle_delay: 5ms
//	strict_ids: false
//	protocol_log: ""
//	devices:
//	  bedroom: 192.168.1.42
//
// The device port is fixed and cannot be configured.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yeectl/yeectl-go/pkg/connection"
	"github.com/yeectl/yeectl-go/pkg/control"
	"github.com/yeectl/yeectl-go/pkg/log"
	"github.com/yeectl/yeectl-go/pkg/session"
	"github.com/yeectl/yeectl-go/pkg/transport"
)

// MaxAttempts bounds connect.attempts.
const MaxAttempts = 1000

// ErrInvalid is wrapped by all validation errors.
var ErrInvalid = errors.New("invalid configuration")

// Connect configures connection establishment.
type Connect struct {
	Attempts       int           `yaml:"attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// Config is the client configuration.
type Config struct {
	Connect     Connect           `yaml:"connect"`
	IOTimeout   time.Duration     `yaml:"io_timeout"`
	SettleDelay time.Duration     `yaml:"settle_delay"`
	StrictIDs   bool              `yaml:"strict_ids"`
	ProtocolLog string            `yaml:"protocol_log"`
	Devices     map[string]string `yaml:"devices"`
}

// LoadError reports a configuration file that could not be loaded.
type LoadError struct {
	// File is the path of the configuration file, if any.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Connect: Connect{
			Attempts:       connection.DefaultMaxAttempts,
			AttemptTimeout: connection.DefaultAttemptTimeout,
		},
		IOTimeout:   transport.DefaultIOTimeout,
		SettleDelay: control.DefaultSettleDelay,
	}
}

// Parse parses YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "validation failed", Cause: err}
	}
	return cfg, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.Connect.Attempts < 1 || c.Connect.Attempts > MaxAttempts {
		return fmt.Errorf("%w: connect.attempts must be between 1 and %d, got %d", ErrInvalid, MaxAttempts, c.Connect.Attempts)
	}
	if c.Connect.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: connect.attempt_timeout must be positive", ErrInvalid)
	}
	if c.Connect.RetryDelay < 0 {
		return fmt.Errorf("%w: connect.retry_delay must not be negative", ErrInvalid)
	}
	if c.IOTimeout <= 0 {
		return fmt.Errorf("%w: io_timeout must be positive", ErrInvalid)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("%w: settle_delay must not be negative", ErrInvalid)
	}
	for name, host := range c.Devices {
		if name == "" {
			return fmt.Errorf("%w: device alias must not be empty", ErrInvalid)
		}
		if host == "" {
			return fmt.Errorf("%w: device %q has no host", ErrInvalid, name)
		}
	}
	return nil
}

// ResolveHost maps a device alias to its host. Anything that is not an
// alias is returned unchanged.
func (c *Config) ResolveHost(nameOrHost string) string {
	if host, ok := c.Devices[nameOrHost]; ok {
		return host
	}
	return nameOrHost
}

// RetryConfig returns the connect retry policy.
func (c *Config) RetryConfig() connection.RetryConfig {
	return connection.RetryConfig{
		MaxAttempts:    c.Connect.Attempts,
		AttemptTimeout: c.Connect.AttemptTimeout,
		Backoff: connection.BackoffConfig{
			Initial: c.Connect.RetryDelay,
			Max:     c.Connect.RetryDelay,
		},
	}
}

// DialConfig returns the transport configuration.
func (c *Config) DialConfig(logger *slog.Logger, plog log.Logger) transport.DialConfig {
	cfg := transport.DefaultDialConfig()
	cfg.Retry = c.RetryConfig()
	cfg.IOTimeout = c.IOTimeout
	cfg.Logger = logger
	cfg.ProtocolLogger = plog
	return cfg
}

// SessionConfig returns the session configuration.
func (c *Config) SessionConfig(logger *slog.Logger, plog log.Logger) session.Config {
	return session.Config{
		StrictIDs:      c.StrictIDs,
		Logger:         logger,
		ProtocolLogger: plog,
	}
}

// ControlOptions returns the controller options.
func (c *Config) ControlOptions(logger *slog.Logger) []control.Option {
	opts := []control.Option{control.WithSettleDelay(c.SettleDelay)}
	if logger != nil {
		opts = append(opts, control.WithLogger(logger))
	}
	return opts
}
