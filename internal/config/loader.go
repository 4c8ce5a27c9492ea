// Copyright 2026 The EXEX Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the primary YAML config file name.
	FileName = "exex.config.yaml"

	// legacyFileName is the original JSON config format, still read for
	// installations that predate the YAML file.
	legacyFileName = "exex.config.json"
)

// Dir returns the per-user EXEX configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: determine config dir: %w", err)
	}
	return filepath.Join(base, "exex"), nil
}

// Path returns the primary config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the daemon configuration, bootstrapping defaults when no
// file exists. It never fails: any path, read, parse, or validation error
// logs the problem and returns the built-in defaults, so a broken config
// file can never keep the daemon from starting.
func Load(logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}

	path, err := Path()
	if err != nil {
		logger.Error("config: cannot determine config path, using defaults", "error", err)
		return Default()
	}

	if cfg, ok := loadFile(path, logger); ok {
		return cfg
	}

	// Fall back to the legacy JSON file before bootstrapping.
	legacy := filepath.Join(filepath.Dir(path), legacyFileName)
	if _, statErr := os.Stat(legacy); statErr == nil {
		if cfg, ok := loadFile(legacy, logger); ok {
			logger.Info("config: loaded legacy JSON config", "path", legacy)
			return cfg
		}
	}

	if _, statErr := os.Stat(path); statErr == nil {
		// File exists but did not load; defaults already logged above.
		return Default()
	}

	// First run: write the defaults so operators have a file to edit.
	cfg := Default()
	if writeErr := Save(cfg, path); writeErr != nil {
		logger.Warn("config: cannot write default config, continuing in memory",
			"path", path, "error", writeErr)
	} else {
		logger.Info("config: created default config", "path", path)
	}
	return cfg
}

// LoadPath reads and validates a config file at an explicit path.
// Unlike Load, errors are returned: an operator who names a file wants to
// know it is broken.
func LoadPath(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}

func loadFile(path string, logger *slog.Logger) (*Config, bool) {
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}

	cfg, err := parseFile(path)
	if err != nil {
		logger.Error("config: config file invalid, using defaults", "path", path, "error", err)
		return nil, false
	}
	if err := Validate(cfg); err != nil {
		logger.Error("config: validation failed, using defaults", "path", path, "error", err)
		return nil, false
	}

	logger.Info("config: loaded", "path", path,
		"disallowed_paths", len(cfg.Security.DisallowedPaths),
		"allowed_paths", len(cfg.Security.AllowedPaths),
	)
	return cfg, true
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
