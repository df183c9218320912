package kgraph

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// options holds the resolved construction settings for a Reasoner,
// assembled by applying a chain of Option values — the functional-
// options idiom used throughout this package's constructors.
type options struct {
	workers      int
	logger       *zap.Logger
	print        PrintFunc
	internalLang string
}

func defaultOptions() *options {
	return &options{
		workers:      0, // 0 -> workerpool.New defaults to runtime.NumCPU()
		logger:       zap.NewNop(),
		internalLang: "en",
	}
}

// Option configures a Reasoner constructed via New.
type Option func(*options)

// WithWorkers sets the fixed worker-pool size. n <= 0 defers to
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger installs a structured logger for deduction/contradiction
// diagnostics. The zero value keeps a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithPrintFunc installs the human-readable diagnostic sink.
func WithPrintFunc(fn PrintFunc) Option {
	return func(o *options) { o.print = fn }
}

// WithInternalLanguage sets the naming layer's fallback-of-last-resort
// language.
func WithInternalLanguage(lang string) Option {
	return func(o *options) {
		if lang != "" {
			o.internalLang = lang
		}
	}
}

// WithAdjacencyThreshold is accepted for forward compatibility with a
// tunable promote/demote boundary on the adjacency container; the
// current adjacency.go hysteresis band (128/64) is a compile-time
// constant, so this option is a documented no-op until that becomes
// configurable.
func WithAdjacencyThreshold(int) Option {
	return func(*options) {}
}

// Config is the yaml-loadable subset of Reasoner construction settings
// an external collaborator (an interactive shell, out of scope here)
// may persist to disk.
type Config struct {
	Workers      int    `yaml:"workers"`
	InternalLang string `yaml:"internal_language"`
}

// LoadConfig reads and parses a Config from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("kgraph: reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("kgraph: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Options translates c into the Option chain New expects.
func (c Config) Options() []Option {
	var opts []Option
	if c.Workers != 0 {
		opts = append(opts, WithWorkers(c.Workers))
	}
	if c.InternalLang != "" {
		opts = append(opts, WithInternalLanguage(c.InternalLang))
	}
	return opts
}
