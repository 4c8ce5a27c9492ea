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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEngine builds an engine from a ruleset with a nil logger.
func newEngine(t *testing.T, rs Ruleset) *Engine {
	t.Helper()
	return NewEngine(NewRuleStore(rs, nil))
}

// mkdir creates a directory tree under a test temp root.
func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func TestPathDecision_DenyPrefix(t *testing.T) {
	root := t.TempDir()
	denied := mkdir(t, root, "system")
	open := mkdir(t, root, "workspace")

	e := newEngine(t, Ruleset{DisallowedPaths: []string{denied}})

	assert.True(t, e.PathDecision(filepath.Join(denied, "passwd")).Denied())
	assert.True(t, e.PathDecision(denied).Denied(), "rule root itself is denied")
	assert.True(t, e.PathDecision(filepath.Join(open, "a.txt")).Allowed, "outside deny list is default-permissive")
}

func TestPathDecision_AllowOverridesDeny(t *testing.T) {
	root := t.TempDir()
	denied := mkdir(t, root, "system")
	carveOut := mkdir(t, root, "system", "exex-cache")

	e := newEngine(t, Ruleset{
		AllowedPaths:    []string{carveOut},
		DisallowedPaths: []string{denied},
	})

	assert.True(t, e.PathDecision(filepath.Join(carveOut, "x")).Allowed,
		"allow exception inside a denied tree wins")
	assert.True(t, e.PathDecision(filepath.Join(denied, "other")).Denied(),
		"siblings of the exception stay denied")
}

func TestPathDecision_DefaultPermissive(t *testing.T) {
	root := t.TempDir()
	free := mkdir(t, root, "free")
	e := newEngine(t, Ruleset{DisallowedPaths: []string{filepath.Join(root, "nope")}})

	got := e.PathDecision(filepath.Join(free, "file.txt"))
	assert.True(t, got.Allowed)
}

func TestPathDecision_DefaultDenyKnob(t *testing.T) {
	root := t.TempDir()
	allowed := mkdir(t, root, "allowed")

	e := newEngine(t, Ruleset{
		AllowedPaths: []string{allowed},
		DefaultDeny:  true,
	})

	assert.True(t, e.PathDecision(filepath.Join(allowed, "f")).Allowed)
	assert.True(t, e.PathDecision(filepath.Join(root, "elsewhere")).Denied())
}

func TestPathDecision_UnresolvableDenied(t *testing.T) {
	root := t.TempDir()
	e := newEngine(t, Ruleset{DisallowedPaths: []string{filepath.Join(root, "x")}})

	// Leaf missing but parent exists: resolvable, default allow applies.
	assert.True(t, e.PathDecision(filepath.Join(root, "new-file.txt")).Allowed)

	// Parent missing too: unresolvable, fail closed.
	got := e.PathDecision(filepath.Join(root, "missing", "deeper", "file.txt"))
	assert.True(t, got.Denied())
	assert.NotEmpty(t, got.Reason)
}

func TestPathDecision_TraversalNormalized(t *testing.T) {
	root := t.TempDir()
	denied := mkdir(t, root, "system")
	mkdir(t, root, "open")

	e := newEngine(t, Ruleset{DisallowedPaths: []string{denied}})

	sneaky := filepath.Join(root, "open", "..", "system", "target")
	assert.True(t, e.PathDecision(sneaky).Denied(),
		"relative segments must not bypass deny rules")
}

func TestPathDecision_SymlinkResolved(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	root := t.TempDir()
	denied := mkdir(t, root, "system")
	link := filepath.Join(root, "alias")
	require.NoError(t, os.Symlink(denied, link))

	e := newEngine(t, Ruleset{DisallowedPaths: []string{denied}})

	assert.True(t, e.PathDecision(filepath.Join(link, "f")).Denied(),
		"a symlink into a denied tree is denied")
}

func TestPathDecision_SegmentBoundary(t *testing.T) {
	root := t.TempDir()
	denied := mkdir(t, root, "sys")
	lookalike := mkdir(t, root, "sysadmin")

	e := newEngine(t, Ruleset{DisallowedPaths: []string{denied}})

	assert.True(t, e.PathDecision(filepath.Join(lookalike, "f")).Allowed,
		"prefix match is per path segment, not per character")
}

func TestPathDecision_NonexistentRuleStillEffective(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	// The denied directory does not exist when the store is built; the rule
	// keeps its literal normalized form and must still block a file created
	// there later.
	ghost := filepath.Join(root, "not-yet-created")
	e := newEngine(t, Ruleset{DisallowedPaths: []string{ghost}})

	mkdir(t, ghost)
	assert.True(t, e.PathDecision(filepath.Join(ghost, "f.txt")).Denied())
}

func TestCommandDecision(t *testing.T) {
	e := newEngine(t, Ruleset{
		CommandWhitelist: []string{"echo", "ls"},
		CommandBlacklist: []string{"rm"},
	})

	tests := []struct {
		name    string
		command string
		allowed bool
	}{
		{"whitelisted", "echo hi", true},
		{"whitelisted with args", "ls -la /tmp", true},
		{"not whitelisted", "git status", false},
		{"blacklisted", "rm -rf /", false},
		{"blacklisted via path", "/bin/rm file", false},
		{"case-insensitive identifier", "ECHO hi", true},
		{"extension stripped", "echo.exe hi", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.CommandDecision(tt.command)
			if got.Allowed != tt.allowed {
				t.Errorf("CommandDecision(%q) = %s, want allowed=%v (reason: %s)",
					tt.command, got, tt.allowed, got.Reason)
			}
		})
	}
}

func TestCommandDecision_BlacklistWinsOverWhitelist(t *testing.T) {
	e := newEngine(t, Ruleset{
		CommandWhitelist: []string{"rm", "echo"},
		CommandBlacklist: []string{"rm"},
	})

	assert.False(t, e.IsCommandAllowed("rm -rf /tmp/x"))
	assert.True(t, e.IsCommandAllowed("echo ok"))
}

func TestCommandDecision_EmptyWhitelistAllowsByDefault(t *testing.T) {
	e := newEngine(t, Ruleset{CommandBlacklist: []string{"mkfs"}})

	assert.True(t, e.IsCommandAllowed("git status"))
	assert.True(t, e.IsCommandAllowed("cargo build"))
	assert.False(t, e.IsCommandAllowed("mkfs /dev/sda1"))
}

func TestIsFileSizeAllowed(t *testing.T) {
	e := newEngine(t, Ruleset{MaxFileSize: 100 * 1024 * 1024})

	assert.True(t, e.IsFileSizeAllowed(50*1024*1024))
	assert.True(t, e.IsFileSizeAllowed(100*1024*1024))
	assert.False(t, e.IsFileSizeAllowed(150*1024*1024))

	unlimited := newEngine(t, Ruleset{})
	assert.True(t, unlimited.IsFileSizeAllowed(1<<40))
}

func TestCommandIdentifier(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"echo hi", "echo"},
		{"/usr/bin/git status", "git"},
		{`C:\Tools\node.exe -v`, "node"},
		{"Python3.EXE script.py", "python3"},
		{"  ls  ", "ls"},
		{"", ""},
		{"./run.sh --flag", "run"},
	}
	for _, tt := range tests {
		if got := CommandIdentifier(tt.raw); got != tt.want {
			t.Errorf("CommandIdentifier(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
