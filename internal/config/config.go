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

// Package config holds the core's static configuration: per-environment
// base URLs, the retry budget, the expected attested application id,
// and the development attestation bypass switch.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment is one of the three deployment environments addressable
// by an API key prefix.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// RetryConfig mirrors internal/backoff.Config in a serializable form.
type RetryConfig struct {
	MaxRetries       int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay     time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay         time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffFactor    float64       `yaml:"backoff_factor" json:"backoff_factor"`
	RetryStatusCodes []int         `yaml:"retry_status_codes" json:"retry_status_codes"`
}

// AttestationConfig configures the Attestation Verifier.
type AttestationConfig struct {
	ExpectedAppID string `yaml:"expected_app_id" json:"expected_app_id"`

	// DevBypass, when true, allows the verifier to skip quote/report/RTMR3
	// validation and trust a server-supplied public key directly. It must
	// never be true in a production build.
	DevBypass bool `yaml:"dev_bypass" json:"dev_bypass"`
}

// Config is the core's top-level configuration.
type Config struct {
	Environment    Environment       `yaml:"environment" json:"environment"`
	Retry          RetryConfig       `yaml:"retry" json:"retry"`
	Attestation    AttestationConfig `yaml:"attestation" json:"attestation"`
	RequestTimeout time.Duration     `yaml:"request_timeout" json:"request_timeout"`
	HandlerTimeout time.Duration     `yaml:"handler_timeout" json:"handler_timeout"`

	// BaseURLOverride replaces the fixed per-environment base URL when
	// set, letting tests point the executor at an httptest server.
	// Empty in production use.
	BaseURLOverride string `yaml:"base_url_override,omitempty" json:"base_url_override,omitempty"`
}

// baseURLs is the fixed environment-to-endpoint mapping.
var baseURLs = map[Environment]string{
	Development: "http://localhost:3000",
	Staging:     "https://staging.crossmint.com",
	Production:  "https://crossmint.com",
}

// BaseURL returns the fixed base URL for env, or an error for an unknown
// environment.
func BaseURL(env Environment) (string, error) {
	u, ok := baseURLs[env]
	if !ok {
		return "", fmt.Errorf("config: unknown environment %q", env)
	}
	return u, nil
}

// Default returns the default configuration: the standard retry
// budget, a 30s handler timeout, attestation bypass disabled.
func Default() Config {
	return Config{
		Environment: Development,
		Retry: RetryConfig{
			MaxRetries:       3,
			InitialDelay:     time.Second,
			MaxDelay:         30 * time.Second,
			BackoffFactor:    2,
			RetryStatusCodes: []int{429, 500, 502, 503, 504},
		},
		RequestTimeout: 15 * time.Second,
		HandlerTimeout: 30 * time.Second,
	}
}

// Load reads a YAML configuration file at path, applying Default() for any
// zero-valued field left unset by the file.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
