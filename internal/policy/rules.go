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

package policy

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
)

// Ruleset is the load-time input to the rule store. It mirrors the
// security section of the daemon configuration; the caller validates it
// once before construction and never again per request.
type Ruleset struct {
	// AllowedPaths are path prefixes exempted from the deny list.
	// An allow entry overrides any deny entry it falls under.
	AllowedPaths []string

	// DisallowedPaths are path prefixes blocked from all operations.
	DisallowedPaths []string

	// CommandWhitelist, when non-empty, restricts execution to the
	// listed command identifiers. Empty means any non-blacklisted
	// command may run.
	CommandWhitelist []string

	// CommandBlacklist lists command identifiers that are always
	// blocked, even when whitelisted.
	CommandBlacklist []string

	// MaxFileSize is the largest file content, in bytes, the daemon
	// will read or write. Zero means no limit.
	MaxFileSize int64

	// DefaultDeny inverts the default-permissive stance: paths matching
	// neither list are denied instead of allowed.
	DefaultDeny bool
}

// RuleStore holds the normalized path and command rules. It is built once
// from configuration at process start, is immutable afterwards, and is
// safe for unsynchronized concurrent reads.
type RuleStore struct {
	allowPaths  []string
	denyPaths   []string
	whitelist   map[string]struct{}
	blacklist   map[string]struct{}
	maxFileSize int64
	defaultDeny bool
}

// NewRuleStore builds a rule store from a ruleset. Construction never
// fails: a path pattern that cannot be canonicalized (commonly because the
// target does not exist yet) is retained in its normalized textual form so
// the rule still guards not-yet-created paths, and a diagnostic is logged.
func NewRuleStore(rs Ruleset, logger *slog.Logger) *RuleStore {
	if logger == nil {
		logger = slog.Default()
	}

	store := &RuleStore{
		allowPaths:  normalizePatterns(rs.AllowedPaths, "allow", logger),
		denyPaths:   normalizePatterns(rs.DisallowedPaths, "deny", logger),
		whitelist:   normalizeCommands(rs.CommandWhitelist),
		blacklist:   normalizeCommands(rs.CommandBlacklist),
		maxFileSize: rs.MaxFileSize,
		defaultDeny: rs.DefaultDeny,
	}

	logger.Debug("policy: rule store built",
		"allow_paths", len(store.allowPaths),
		"deny_paths", len(store.denyPaths),
		"whitelist", len(store.whitelist),
		"blacklist", len(store.blacklist),
		"default_deny", store.defaultDeny,
	)

	return store
}

// AllowedPaths returns the normalized allow prefixes, for startup logging.
func (s *RuleStore) AllowedPaths() []string {
	return append([]string(nil), s.allowPaths...)
}

// DeniedPaths returns the normalized deny prefixes, for startup logging.
func (s *RuleStore) DeniedPaths() []string {
	return append([]string(nil), s.denyPaths...)
}

// MaxFileSize returns the configured content size cap in bytes.
func (s *RuleStore) MaxFileSize() int64 {
	return s.maxFileSize
}

// normalizePatterns canonicalizes each configured path pattern. Symlinks
// are resolved when the target exists; otherwise the cleaned literal form
// is kept. Duplicates collapse harmlessly.
func normalizePatterns(patterns []string, kind string, logger *slog.Logger) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))

	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}

		cleaned := filepath.Clean(normalizeSlashes(p))
		normalized := cleaned
		if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
			normalized = resolved
		} else {
			logger.Debug("policy: pattern not canonicalized, kept literal",
				"kind", kind,
				"pattern", cleaned,
				"error", err,
			)
		}

		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}

	return out
}

// normalizeSlashes rewrites path separators to the target OS convention.
// Configuration files are shared across platforms, so both styles appear.
func normalizeSlashes(p string) string {
	if runtime.GOOS == "windows" {
		return strings.ReplaceAll(p, "/", `\`)
	}
	return strings.ReplaceAll(p, `\`, "/")
}

// normalizeCommands builds a lower-cased command identifier set.
func normalizeCommands(commands []string) map[string]struct{} {
	set := make(map[string]struct{}, len(commands))
	for _, c := range commands {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

// hasPathPrefix reports whether path equals prefix or is a descendant of
// it. Comparison is segment-aware so "/etc/exex" does not match a
// "/etc/ex" rule. Both arguments must already be canonical.
func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(prefix, sep) {
		prefix += sep
	}
	return strings.HasPrefix(path, prefix)
}
