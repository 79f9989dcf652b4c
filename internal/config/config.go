// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package config loads runtime configuration with layered sources:
// built-in defaults, then an optional YAML file, then DRIFTLINE_*
// environment variables. Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order. The
// first file found wins.
var DefaultConfigPaths = []string{
	"driftline.yaml",
	"driftline.yml",
	"/etc/driftline/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "DRIFTLINE_CONFIG"

// envPrefix scopes environment overrides to this process.
const envPrefix = "DRIFTLINE_"

// Config is the full runtime configuration.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Store     StoreConfig     `koanf:"store"`
	API       APIConfig       `koanf:"api"`
	Transport TransportConfig `koanf:"transport"`
	Auth      AuthConfig      `koanf:"auth"`
	Sync      SyncConfig      `koanf:"sync"`
	Server    ServerConfig    `koanf:"server"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// StoreConfig controls the local entity store.
type StoreConfig struct {
	Path       string `koanf:"path" validate:"required_unless=InMemory true"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
	QueueSize  int    `koanf:"queue_size" validate:"gte=0"`
}

// APIConfig controls the backend REST client.
type APIConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"required,url"`
	Key           string        `koanf:"key" validate:"required"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gt=0"`
	RateBurst     int           `koanf:"rate_burst" validate:"gt=0"`
}

// TransportConfig controls the realtime event connection.
type TransportConfig struct {
	URL string `koanf:"url" validate:"required,url"`
}

// AuthConfig identifies the local user. Secret, when set, is used to mint
// user tokens locally (server-side apps and tests); otherwise Token must
// carry a token issued elsewhere.
type AuthConfig struct {
	UserID string `koanf:"user_id" validate:"required"`
	Token  string `koanf:"token"`
	Secret string `koanf:"secret"`
}

// SyncConfig selects the channels mirrored on startup. Channels joined
// later arrive through realtime events regardless of this list.
type SyncConfig struct {
	Channels     []string `koanf:"channels" validate:"dive,contains=:"`
	MessageLimit int      `koanf:"message_limit" validate:"gte=0"`
}

// ServerConfig controls the local diagnostics listener (health, metrics).
type ServerConfig struct {
	Addr    string        `koanf:"addr"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Path:       "/data/driftline",
			InMemory:   false,
			SyncWrites: false,
			QueueSize:  0, // store default
		},
		API: APIConfig{
			BaseURL:       "https://chat.driftline.dev",
			Timeout:       30 * time.Second,
			RatePerSecond: 10,
			RateBurst:     20,
		},
		Transport: TransportConfig{
			URL: "wss://chat.driftline.dev/connect",
		},
		Sync: SyncConfig{
			MessageLimit: 100,
		},
		Server: ServerConfig{
			Addr:    "127.0.0.1:9464",
			Timeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// DRIFTLINE_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Slice fields arrive from the environment as comma-separated strings.
	if raw := k.String("sync.channels"); raw != "" && k.Get("sync.channels") != nil {
		if _, ok := k.Get("sync.channels").(string); ok {
			parts := strings.Split(raw, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			if err := k.Set("sync.channels", parts); err != nil {
				return nil, fmt.Errorf("parse sync.channels: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			return fmt.Errorf("invalid configuration: %s fails %q", strings.ToLower(f.Namespace()), f.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Auth.Token == "" && c.Auth.Secret == "" {
		return fmt.Errorf("invalid configuration: one of auth.token or auth.secret is required")
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		return envPath
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps DRIFTLINE_SECTION_SOME_KEY to section.some_key. The
// first underscore after the prefix separates the section; the remainder
// keeps its underscores.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + rest
}
