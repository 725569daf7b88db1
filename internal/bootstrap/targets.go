// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

// Package bootstrap provisions the database resources CareDesk requires
// before the application may connect. It runs once per deploy and is safe
// to re-run: every ensure operation is an idempotent check-then-create.
package bootstrap

import (
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/samber/oops"
)

// TargetKind identifies the kind of resource a target names.
type TargetKind string

// Provisioning target kinds.
const (
	KindDatabase  TargetKind = "database"
	KindExtension TargetKind = "extension"
)

// Target names a single database resource to ensure exists.
type Target struct {
	Name string
	Kind TargetKind
}

// Config is the environment contract for the bootstrap command.
// The target lists are comma-separated resource names.
type Config struct {
	DatabaseURL string   `env:"DATABASE_URL"`
	Databases   []string `env:"TARGET_DATABASES" envSeparator:","`
	Extensions  []string `env:"TARGET_EXTENSIONS" envSeparator:","`
	Packages    []string `env:"TARGET_PACKAGES" envSeparator:","`
}

// LoadConfig reads bootstrap configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").With("operation", "parse environment").Wrap(err)
	}
	if cfg.DatabaseURL == "" {
		return Config{}, oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	cfg.Databases = cleanNames(cfg.Databases)
	cfg.Extensions = cleanNames(cfg.Extensions)
	cfg.Packages = cleanNames(cfg.Packages)
	return cfg, nil
}

// Targets expands the configured name lists into provisioning targets,
// databases first, then extensions.
func (c Config) Targets() []Target {
	targets := make([]Target, 0, len(c.Databases)+len(c.Extensions))
	for _, name := range c.Databases {
		targets = append(targets, Target{Name: name, Kind: KindDatabase})
	}
	for _, name := range c.Extensions {
		targets = append(targets, Target{Name: name, Kind: KindExtension})
	}
	return targets
}

// cleanNames trims whitespace and drops empty entries, preserving order.
func cleanNames(names []string) []string {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cleaned = append(cleaned, name)
	}
	return cleaned
}

// DSNForDatabase rewrites the database path of a connection string so a
// caller can fan provisioning out across target databases explicitly.
func DSNForDatabase(baseURL, database string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", oops.Code("CONFIG_INVALID").With("operation", "parse database URL").Wrap(err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", oops.Code("CONFIG_INVALID").Errorf("unsupported database URL scheme %q", u.Scheme)
	}
	u.Path = "/" + database
	return u.String(), nil
}
