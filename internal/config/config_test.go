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
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Version: "1.0",
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8080},
		Security: SecurityConfig{
			DisallowedPaths: []string{"/etc/"},
			MaxFileSizeMB:   100,
		},
		Logging: LoggingConfig{Level: "info", AuditDir: "audit"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing version", func(c *Config) { c.Version = " " }, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty disallowed", func(c *Config) { c.Security.DisallowedPaths = nil }, true},
		{"blank disallowed entry", func(c *Config) { c.Security.DisallowedPaths = []string{" "} }, true},
		{"blank allowed entry", func(c *Config) { c.Security.AllowedPaths = []string{""} }, true},
		{"negative size cap", func(c *Config) { c.Security.MaxFileSizeMB = -1 }, true},
		{"deny default action", func(c *Config) { c.Security.DefaultPathAction = "deny" }, false},
		{"bogus default action", func(c *Config) { c.Security.DefaultPathAction = "maybe" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.NotEmpty(t, cfg.Security.DisallowedPaths)
	assert.False(t, cfg.Security.DefaultDeny(), "ships default-permissive")
	assert.Equal(t, int64(100*1024*1024), cfg.Security.MaxFileSizeBytes())
}

func TestDefault_NoWildcardPlaceholders(t *testing.T) {
	cfg := Default()
	for _, p := range append(cfg.Security.AllowedPaths, cfg.Security.DisallowedPaths...) {
		assert.NotContains(t, p, "*", "defaults must be literal prefixes, got %q", p)
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LoggingConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LoggingConfig{Level: "WARN"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LoggingConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LoggingConfig{Level: "bogus"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LoggingConfig{}.SlogLevel())
}

func TestSaveAndLoadPath_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg := validConfig()
	cfg.Security.CommandWhitelist = []string{"echo", "ls"}
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Security.CommandWhitelist, loaded.Security.CommandWhitelist)
	assert.Equal(t, cfg.Server.Addr(), loaded.Server.Addr())
}

func TestLoadPath_LegacyJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exex.config.json")

	data := []byte(`{
		"version": "1.0",
		"server": {"host": "127.0.0.1", "port": 9000},
		"security": {
			"allowed_paths": ["/tmp/"],
			"disallowed_paths": ["/etc/"],
			"command_whitelist": ["echo"],
			"max_file_size_mb": 50
		},
		"logging": {"level": "debug", "audit_dir": "audit"}
	}`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadPath(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"echo"}, cfg.Security.CommandWhitelist)
	assert.Equal(t, int64(50), cfg.Security.MaxFileSizeMB)
}

func TestLoadPath_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o600))

	_, err := LoadPath(path)
	assert.Error(t, err)
}

func TestLoadPath_Missing(t *testing.T) {
	_, err := LoadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
