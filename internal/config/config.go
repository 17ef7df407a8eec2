// Package config loads doubtflow settings from an optional YAML file, an
// optional .env file and the process environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/pkg/runner"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no explicit path is given and it exists.
const DefaultFile = "doubtflow.yaml"

// Config holds all configuration for doubtflow processes.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Flows  FlowsConfig  `yaml:"flows"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Redis  RedisConfig  `yaml:"redis"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxInputSize    int           `yaml:"max_input_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type FlowsConfig struct {
	// Paths are flow files or directories seeded into the store.
	Paths []string `yaml:"paths"`
	// Defaults seeds the built-in demonstration flows.
	Defaults bool `yaml:"defaults"`
	// Strict rejects saves with dangling references.
	Strict bool `yaml:"strict"`
}

type OpenAIConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxInputSize:    runner.DefaultMaxInputSize,
			ShutdownTimeout: 5 * time.Second,
		},
		Flows:  FlowsConfig{Defaults: true},
		OpenAI: OpenAIConfig{Temperature: 0.7, Timeout: 60 * time.Second},
		Redis:  RedisConfig{Prefix: "doubtflow:"},
	}
}

// Load builds the configuration. An empty path falls back to DefaultFile
// when present; an explicit path must exist. envFiles are passed to
// godotenv; without them ".env" is tried and ignored if missing.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.Log.Level, "DOUBTFLOW_LOG_LEVEL")
	setString(&c.Log.Format, "DOUBTFLOW_LOG_FORMAT")
	setString(&c.Server.Addr, "DOUBTFLOW_ADDR")
	errs = append(errs, setInt(&c.Server.MaxInputSize, runner.EnvMaxInputSize))
	errs = append(errs, setDuration(&c.Server.ShutdownTimeout, "DOUBTFLOW_SHUTDOWN_TIMEOUT"))

	if v := os.Getenv("DOUBTFLOW_FLOWS"); v != "" {
		c.Flows.Paths = splitList(v)
	}
	errs = append(errs, setBool(&c.Flows.Defaults, "DOUBTFLOW_DEFAULT_FLOWS"))
	errs = append(errs, setBool(&c.Flows.Strict, "DOUBTFLOW_STRICT"))

	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	errs = append(errs, setInt(&c.OpenAI.MaxTokens, "OPENAI_MAX_TOKENS"))
	errs = append(errs, setDuration(&c.OpenAI.Timeout, "OPENAI_TIMEOUT"))
	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("OPENAI_TEMPERATURE: %w", err))
		} else {
			c.OpenAI.Temperature = float32(f)
		}
	}

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	errs = append(errs, setInt(&c.Redis.DB, "REDIS_DB"))
	setString(&c.Redis.Prefix, "DOUBTFLOW_REDIS_PREFIX")

	return errors.Join(errs...)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Server.MaxInputSize <= 0 {
		errs = append(errs, errors.New("max_input_size must be positive"))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, errors.New("openai temperature must be between 0 and 2"))
	}
	if c.OpenAI.MaxTokens < 0 {
		errs = append(errs, errors.New("openai max_tokens must not be negative"))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, errors.New("redis db must not be negative"))
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed log level. Validate guarantees it parses.
func (c *Config) LogLevel() slog.Level {
	level, _ := ParseLevel(c.Log.Level)
	return level
}

// LogFormat returns the parsed log format. Validate guarantees it parses.
func (c *Config) LogFormat() logging.Format {
	format, _ := logging.ParseFormat(c.Log.Format)
	return format
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
