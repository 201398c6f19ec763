// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package config loads and validates withdrawalqueue's configuration.
package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

func logLevelOrDefault(level string) (logrus.Level, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("logging_level: %w", err)
	}

	return parsed, nil
}

// Config is the top-level configuration for a withdrawalqueue process.
type Config struct {
	LoggingLevel string `yaml:"logging_level" default:"info"`

	Store    StoreConfig    `yaml:"store"`
	HTTP     HTTPConfig     `yaml:"http"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Authz    AuthzConfig    `yaml:"authz"`
	Economic EconomicConfig `yaml:"economic"`
}

// StoreConfig configures the bbolt-backed persistence layer.
type StoreConfig struct {
	DataPath string `yaml:"data_path" default:"./withdrawalqueue.db"`
}

// HTTPConfig configures the ops-only HTTP surface.
type HTTPConfig struct {
	ListenAddr  string   `yaml:"listen_addr" default:":9090"`
	CORSAllowed []string `yaml:"cors_allowed_origins"`
}

// OracleConfig configures the oracle polling collaborator.
type OracleConfig struct {
	BaseURL      string `yaml:"base_url"`
	PollInterval string `yaml:"poll_interval" default:"12s"`
}

// AuthzConfig configures the JWT-based authorisation collaborator.
type AuthzConfig struct {
	SigningKeyEnv string `yaml:"signing_key_env" default:"WITHDRAWALQUEUE_SIGNING_KEY"`
}

// EconomicConfig carries the domain constants an operator may need to
// tune per deployment (the token display exponent; the core's own
// constants in spec.md §6 are fixed and not configurable).
type EconomicConfig struct {
	DisplayExponent int32 `yaml:"display_exponent" default:"18"`
}

// Validate checks cross-field invariants Load cannot express via
// struct tags alone.
func (c *Config) Validate() error {
	if c.Store.DataPath == "" {
		return fmt.Errorf("store.data_path must not be empty")
	}

	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url must not be empty")
	}

	if _, err := logLevelOrDefault(c.LoggingLevel); err != nil {
		return err
	}

	return nil
}

// Load reads, defaults, unmarshals and validates the config file at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	type plain Config

	if err := yaml.Unmarshal(raw, (*plain)(cfg)); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
