// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads and validates the expert agent's host-process
// configuration: the protocol/payment settings the core consumes (§6) plus
// the ambient logging, metrics, and health sub-configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the host process's configuration file shape. The fields
// mirroring §6's initialization options are consumed directly by
// expert.Config; Logging, Metrics, and Health are ambient sub-configs with
// no equivalent in the core.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	NWCString      string        `yaml:"nwc_string" json:"nwc_string"`
	ExpertPrivKey  string        `yaml:"expert_privkey" json:"expert_privkey"`
	AskRelays      []string      `yaml:"ask_relays" json:"ask_relays"`
	QuestionRelays []string      `yaml:"question_relays" json:"question_relays"`
	Hashtags       []string      `yaml:"hashtags" json:"hashtags"`
	BidTimeout     time.Duration `yaml:"bid_timeout" json:"bid_timeout"`

	Logging *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health  *HealthConfig  `yaml:"health" json:"health"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents the Prometheus exposition server configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check surface configuration.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from a YAML (or JSON) file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setDefaults fills in the defaults named in §6.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.BidTimeout == 0 {
		cfg.BidTimeout = 600 * time.Second
	}
	if cfg.Hashtags == nil {
		cfg.Hashtags = []string{}
	}

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}
	if cfg.Metrics != nil && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Health != nil && cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}

// ValidationError is one field-level problem found by Validate.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the fields the core requires at construction (§6, §7:
// "only configuration validation may fail synchronously at construction").
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	if cfg.NWCString == "" {
		errs = append(errs, ValidationError{Field: "nwc_string", Message: "is required"})
	}
	if cfg.ExpertPrivKey == "" {
		errs = append(errs, ValidationError{Field: "expert_privkey", Message: "is required"})
	}
	if len(cfg.AskRelays) == 0 {
		errs = append(errs, ValidationError{Field: "ask_relays", Message: "must list at least one relay"})
	}
	if len(cfg.QuestionRelays) == 0 {
		errs = append(errs, ValidationError{Field: "question_relays", Message: "must list at least one relay"})
	}
	return errs
}
