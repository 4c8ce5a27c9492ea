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
	"strings"
	"time"
)

// Engine evaluates paths and commands against an immutable RuleStore.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	rules    *RuleStore
	resolver resolver
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithResolveTimeout bounds per-path canonicalization. A timed-out
// resolution denies the request.
func WithResolveTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.resolver.timeout = d
		}
	}
}

// NewEngine creates an engine over the given rule store.
func NewEngine(rules *RuleStore, opts ...Option) *Engine {
	e := &Engine{
		rules:    rules,
		resolver: resolver{timeout: defaultResolveTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// PathDecision resolves raw to its canonical form and evaluates it against
// the path rules. Precedence, first match wins:
//
//  1. allow-list prefix match — overrides any deny rule, so narrow
//     exceptions can be carved out of broadly denied trees;
//  2. deny-list prefix match;
//  3. the configured default (allow unless default_path_action is deny).
//
// A path that cannot be resolved is denied: silently allowing unknown
// paths would be the more dangerous failure mode.
func (e *Engine) PathDecision(raw string) Verdict {
	resolved, err := e.resolver.Resolve(raw)
	if err != nil {
		e.logger.Debug("policy: path unresolvable, denying", "path", raw, "error", err)
		return Deny("path %q cannot be resolved", raw)
	}

	for _, allow := range e.rules.allowPaths {
		if hasPathPrefix(resolved, allow) {
			e.logger.Debug("policy: path explicitly allowed", "path", resolved, "rule", allow)
			return Allow()
		}
	}

	for _, deny := range e.rules.denyPaths {
		if hasPathPrefix(resolved, deny) {
			e.logger.Debug("policy: path denied", "path", resolved, "rule", deny)
			return Deny("path %q is under the disallowed prefix %q", resolved, deny)
		}
	}

	if e.rules.defaultDeny {
		return Deny("path %q matches no allowed prefix", resolved)
	}
	return Allow()
}

// CommandDecision reduces raw to a command identifier and evaluates it
// against the whitelist and blacklist. Blacklist membership denies
// unconditionally, even for whitelisted identifiers. A non-empty whitelist
// requires membership; an empty whitelist allows any non-blacklisted
// command.
func (e *Engine) CommandDecision(raw string) Verdict {
	name := CommandIdentifier(raw)
	if name == "" {
		return Deny("empty command")
	}

	if _, blocked := e.rules.blacklist[name]; blocked {
		e.logger.Warn("policy: command blacklisted", "command", name)
		return Deny("command %q is blacklisted", name)
	}

	if len(e.rules.whitelist) > 0 {
		if _, ok := e.rules.whitelist[name]; !ok {
			e.logger.Warn("policy: command not whitelisted", "command", name)
			return Deny("command %q is not in the whitelist", name)
		}
	}

	return Allow()
}

// IsPathAllowed is the boolean form of PathDecision.
func (e *Engine) IsPathAllowed(path string) bool {
	return e.PathDecision(path).Allowed
}

// IsCommandAllowed is the boolean form of CommandDecision.
func (e *Engine) IsCommandAllowed(command string) bool {
	return e.CommandDecision(command).Allowed
}

// IsCommandSafe applies the destructive-substring heuristic to the full
// raw command string. It is an independent defense-in-depth layer: it can
// deny a command the whitelist would allow, but never allows one the
// whitelist/blacklist logic denies.
func (e *Engine) IsCommandSafe(command string) bool {
	return CommandSafe(command)
}

// IsFileSizeAllowed reports whether a content size is within the
// configured cap. A zero cap means unlimited.
func (e *Engine) IsFileSizeAllowed(sizeBytes int64) bool {
	if e.rules.maxFileSize <= 0 {
		return true
	}
	return sizeBytes <= e.rules.maxFileSize
}

// MaxFileSize returns the configured content size cap in bytes.
func (e *Engine) MaxFileSize() int64 {
	return e.rules.maxFileSize
}

// CommandIdentifier reduces a raw command string to the identity used for
// whitelist/blacklist membership: the first whitespace token, directory
// components and file extension stripped, lower-cased.
//
//	"echo hi"              → "echo"
//	"/usr/bin/Git status"  → "git"
//	`C:\Tools\node.exe -v` → "node"
func CommandIdentifier(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}

	base := fields[0]
	// Commands may carry either separator style regardless of host OS.
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	return strings.ToLower(base)
}
