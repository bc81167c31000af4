// Package config loads the process configuration. Values start from
// Default, are overridden by an optional YAML file, then by
// environment variables prefixed with OVERWORKED_, and are validated
// last.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jrife/overworked/dispatcher"
	"github.com/jrife/overworked/router"
	"github.com/jrife/overworked/storage/kv"
	"github.com/jrife/overworked/storage/kv/plugins"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment variable the loader reads
	EnvPrefix = "OVERWORKED_"
)

// Config is the process configuration
type Config struct {
	HTTP       HTTPConfig       `yaml:"http" envPrefix:"HTTP_"`
	GRPC       GRPCConfig       `yaml:"grpc" envPrefix:"GRPC_"`
	Actor      ActorConfig      `yaml:"actor" envPrefix:"ACTOR_"`
	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" envPrefix:"DISPATCHER_"`
	Router     RouterConfig     `yaml:"router" envPrefix:"ROUTER_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
	// ShutdownTimeout bounds how long frontends wait for requests
	// in progress when the process is asked to stop
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// HTTPConfig configures the REST frontend. An empty address disables it.
type HTTPConfig struct {
	Address string `yaml:"address" env:"ADDRESS"`
}

// GRPCConfig configures the gRPC frontend. An empty address disables it.
type GRPCConfig struct {
	Address string `yaml:"address" env:"ADDRESS"`
}

// ActorConfig configures actors
type ActorConfig struct {
	Identity    string        `yaml:"identity" env:"IDENTITY"`
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
}

// StorageConfig configures the kv driver backing actors
type StorageConfig struct {
	Driver string        `yaml:"driver" env:"DRIVER"`
	Path   string        `yaml:"path" env:"PATH"`
	// OpenTimeout bounds how long the bbolt driver waits for its file lock
	OpenTimeout time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`
	// Latency is added to every storage operation
	Latency time.Duration `yaml:"latency" env:"LATENCY"`
}

// DispatcherConfig configures fan-outs
type DispatcherConfig struct {
	Limit  int    `yaml:"limit" env:"LIMIT"`
	Policy string `yaml:"policy" env:"POLICY"`
}

// RouterConfig configures the request router
type RouterConfig struct {
	MaxFanOut int `yaml:"max_fan_out" env:"MAX_FAN_OUT"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Address: ":8080"},
		Actor: ActorConfig{
			Identity: router.DefaultIdentity,
		},
		Storage: StorageConfig{
			Driver: kv.MemoryDriverName,
		},
		Dispatcher: DispatcherConfig{
			Policy: string(dispatcher.PolicyFailFast),
		},
		Log: LogConfig{
			Level: "info",
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Loader loads configuration
type Loader struct {
	// Environment replaces the process environment when it is not nil
	Environment map[string]string
}

// Load loads configuration using the process environment
func Load(path string) (*Config, error) {
	return (&Loader{}).Load(path)
}

// Load loads configuration from the YAML file at path, if path
// is not empty, then applies environment overrides and validates
// the result
func (loader *Loader) Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := loader.loadFromFile(config, path); err != nil {
			return nil, err
		}
	}

	options := env.Options{Prefix: EnvPrefix, Environment: loader.Environment}

	if err := env.ParseWithOptions(config, options); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvironment, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func (loader *Loader) loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)

	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
	} else if err != nil {
		return fmt.Errorf("could not read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfigParse, path, err)
	}

	return nil
}

// Validate checks the configuration for errors
func (config *Config) Validate() error {
	if config.HTTP.Address == "" && config.GRPC.Address == "" {
		return ErrNoFrontend
	}

	if plugins.Plugin(config.Storage.Driver) == nil {
		return fmt.Errorf("%w: %q", ErrInvalidDriver, config.Storage.Driver)
	}

	if config.Storage.Driver == kv.BBoltDriverName && config.Storage.Path == "" {
		return ErrStoragePath
	}

	if _, err := zapcore.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Log.Level)
	}

	if _, err := dispatcher.ParsePolicy(config.Dispatcher.Policy); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, config.Dispatcher.Policy)
	}

	for name, value := range map[string]int64{
		"actor.call_timeout":   int64(config.Actor.CallTimeout),
		"storage.open_timeout": int64(config.Storage.OpenTimeout),
		"storage.latency":      int64(config.Storage.Latency),
		"dispatcher.limit":     int64(config.Dispatcher.Limit),
		"router.max_fan_out":   int64(config.Router.MaxFanOut),
		"shutdown_timeout":     int64(config.ShutdownTimeout),
	} {
		if value < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeValue, name)
		}
	}

	return nil
}

// StorageOptions returns the options passed to the kv plugin
func (config *Config) StorageOptions() kv.PluginOptions {
	options := kv.PluginOptions{}

	if config.Storage.Path != "" {
		options["path"] = config.Storage.Path
	}

	if config.Storage.OpenTimeout > 0 {
		options["timeout"] = config.Storage.OpenTimeout
	}

	return options
}
