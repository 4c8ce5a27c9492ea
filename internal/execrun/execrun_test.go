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

package execrun

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunArgvMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix echo")
	}

	result, err := Run(context.Background(), "echo", []string{"hello", "world"}, "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello world\n", result.Stdout)
	assert.Empty(t, result.Stderr)
}

func TestRunShellFallback(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}

	// Nil args routes the raw string through the shell, so pipes work.
	result, err := Run(context.Background(), "echo one two | wc -w", nil, "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "2", strings.TrimSpace(result.Stdout))
}

func TestRunNonZeroExitIsNotError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}

	result, err := Run(context.Background(), "exit 3", nil, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ExitCode)
}

func TestRunSpawnFailure(t *testing.T) {
	_, err := Run(context.Background(), "definitely-not-a-real-binary-xyz", []string{}, "")
	assert.Error(t, err)
}

func TestRunWorkingDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on pwd")
	}

	dir := t.TempDir()
	result, err := Run(context.Background(), "pwd", nil, dir)
	require.NoError(t, err)

	// TempDir may sit behind a symlink (macOS /var); compare resolved.
	got, resolveErr := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	require.NoError(t, resolveErr)
	want, resolveErr := filepath.EvalSymlinks(dir)
	require.NoError(t, resolveErr)
	assert.Equal(t, want, got)
}

func TestRunContextCancellation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sleep")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, "sleep 30", nil, "")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOpenDetached(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sleep")
	}

	pid, err := Open("sleep", []string{"0.1"}, "")
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
}

func TestOpenMissingBinary(t *testing.T) {
	_, err := Open("definitely-not-a-real-binary-xyz", nil, "")
	assert.Error(t, err)
}
