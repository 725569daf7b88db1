// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

// Package config loads the serve command's configuration. Precedence,
// lowest to highest: built-in defaults, environment, YAML config file,
// command-line flags.
package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// devSecretKey is the deterministic development fallback for token
// signing. Production deployments must set SECRET_KEY.
const devSecretKey = "dev-secret-key-change-me"

// Config holds the serve command's settings.
type Config struct {
	ListenAddr  string `koanf:"listen_addr"  env:"LISTEN_ADDR"`
	MetricsAddr string `koanf:"metrics_addr" env:"METRICS_ADDR"`
	DatabaseURL string `koanf:"database_url" env:"DATABASE_URL"`
	SecretKey   string `koanf:"secret_key"   env:"SECRET_KEY"`
	Workers     int    `koanf:"workers"      env:"SERVER_WORKERS"`
	LogLevel    string `koanf:"log_level"    env:"LOG_LEVEL"`
	LogFormat   string `koanf:"log_format"   env:"LOG_FORMAT"`
}

// defaults returns the built-in configuration.
func defaults() Config {
	return Config{
		ListenAddr:  ":8080",
		MetricsAddr: "127.0.0.1:9100",
		SecretKey:   devSecretKey,
		Workers:     4,
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

// Load builds the serve configuration. path may be empty (no config
// file); flags may be nil (no flag overrides).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := defaults()

	if err := env.Parse(&cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "parse environment").
			Wrap(err)
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("path", path).
				Wrap(err)
		}
	}
	if flags != nil {
		// Only explicitly set flags override; flag defaults must not
		// shadow environment or file values.
		cb := func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, cb), nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("operation", "load flags").
				Wrap(err)
		}
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required (set DATABASE_URL)")
	}
	if c.Workers <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("workers", c.Workers).
			Errorf("workers must be positive")
	}
	return nil
}

// UsingDevSecret reports whether the token secret is the development
// fallback, so startup can log a warning.
func (c *Config) UsingDevSecret() bool {
	return c.SecretKey == devSecretKey
}
