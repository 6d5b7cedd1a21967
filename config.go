package toolloop

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the loop settings that can live in a configuration file. Fields left out of the
// file keep the defaults of DefaultConfig.
type Config struct {
	MaxIterations           int  `yaml:"max_iterations"`
	MaxConsecutiveErrors    int  `yaml:"max_consecutive_errors"`
	ConcurrentInvocation    bool `yaml:"concurrent_invocation"`
	DetailedErrors          bool `yaml:"detailed_errors"`
	TerminateOnUnknownCalls bool `yaml:"terminate_on_unknown_calls"`
}

// DefaultConfig returns the settings used when no option is given.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        DefaultMaxIterations,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

// ParseConfig decodes YAML on top of DefaultConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse tool loop config: %w", err)
	}
	o := cfg.resolve()
	if err := o.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Options converts the settings to loop options. Options passed after them to NewLoop win.
func (c Config) Options() []Option {
	return []Option{
		WithMaxIterations(c.MaxIterations),
		WithMaxConsecutiveErrors(c.MaxConsecutiveErrors),
		WithConcurrentInvocation(c.ConcurrentInvocation),
		WithDetailedErrors(c.DetailedErrors),
		WithTerminateOnUnknownCalls(c.TerminateOnUnknownCalls),
	}
}

func (c Config) resolve() loopOptions {
	o := defaultLoopOptions()
	for _, opt := range c.Options() {
		opt(&o)
	}
	return o
}
