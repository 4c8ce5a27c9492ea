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

// Package config defines the daemon's load-time configuration surface.
//
// Configuration is read once at process start and never re-read: the rule
// store built from it is immutable for the process lifetime, and changes
// on disk take effect only after a restart. Invalid or missing
// configuration is never fatal — the daemon falls back to built-in
// defaults rather than terminating.
package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config is the authoritative daemon configuration.
type Config struct {
	// Version is the config schema version.
	Version string `yaml:"version" json:"version"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" json:"server"`

	// Security configures the policy engine rules.
	Security SecurityConfig `yaml:"security" json:"security"`

	// Logging configures log level and the audit trail location.
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Addr returns the host:port bind address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig is the policy engine's rule input.
type SecurityConfig struct {
	// AllowedPaths are prefix exceptions carved out of the deny list.
	AllowedPaths []string `yaml:"allowed_paths" json:"allowed_paths"`

	// DisallowedPaths are prefixes blocked from every operation.
	DisallowedPaths []string `yaml:"disallowed_paths" json:"disallowed_paths"`

	// CommandWhitelist restricts execution to the listed commands when
	// non-empty.
	CommandWhitelist []string `yaml:"command_whitelist" json:"command_whitelist"`

	// CommandBlacklist always blocks the listed commands.
	CommandBlacklist []string `yaml:"command_blacklist,omitempty" json:"command_blacklist,omitempty"`

	// MaxFileSizeMB caps file content read or written through the API.
	MaxFileSizeMB int64 `yaml:"max_file_size_mb" json:"max_file_size_mb"`

	// DefaultPathAction is "allow" or "deny" and governs paths matching
	// neither list. The shipped default is "allow": the daemon is
	// deliberately default-permissive outside the deny list.
	DefaultPathAction string `yaml:"default_path_action,omitempty" json:"default_path_action,omitempty"`
}

// DefaultDeny reports whether unmatched paths should be denied.
func (s SecurityConfig) DefaultDeny() bool {
	return strings.EqualFold(strings.TrimSpace(s.DefaultPathAction), "deny")
}

// MaxFileSizeBytes returns the content cap in bytes.
func (s SecurityConfig) MaxFileSizeBytes() int64 {
	return s.MaxFileSizeMB * 1024 * 1024
}

// LoggingConfig controls log verbosity and audit output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// AuditDir is the directory holding the JSONL audit trail.
	AuditDir string `yaml:"audit_dir" json:"audit_dir"`
}

// SlogLevel parses the configured level, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the configuration once at load time. Structural rules:
// every path entry non-empty after trimming, at least one disallowed path,
// a sane port, and a recognized default path action.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Version) == "" {
		return fmt.Errorf("config: version must be set")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", cfg.Server.Port)
	}
	if len(cfg.Security.DisallowedPaths) == 0 {
		return fmt.Errorf("config: at least one disallowed path is required")
	}
	for _, p := range cfg.Security.DisallowedPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("config: disallowed paths cannot be blank")
		}
	}
	for _, p := range cfg.Security.AllowedPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("config: allowed paths cannot be blank")
		}
	}
	if cfg.Security.MaxFileSizeMB < 0 {
		return fmt.Errorf("config: max_file_size_mb cannot be negative")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Security.DefaultPathAction)) {
	case "", "allow", "deny":
	default:
		return fmt.Errorf("config: default_path_action must be \"allow\" or \"deny\", got %q",
			cfg.Security.DefaultPathAction)
	}
	return nil
}

// WarnMissingCriticalPaths logs a warning for each OS-critical path absent
// from the deny list. Advisory only; the config remains valid.
func WarnMissingCriticalPaths(cfg *Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, critical := range criticalPaths() {
		found := false
		for _, p := range cfg.Security.DisallowedPaths {
			if strings.Contains(p, critical) {
				found = true
				break
			}
		}
		if !found {
			logger.Warn("config: critical path missing from disallowed list", "path", critical)
		}
	}
}
