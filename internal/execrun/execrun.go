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

// Package execrun runs commands and launches applications on behalf of
// the daemon. Policy verdicts happen before these functions are called.
package execrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// runWaitDelay caps how long Run waits after context cancellation for
// descendants holding the stdout/stderr pipes. Killing the shell does not
// kill its children, and an orphaned grandchild must not block dispatch.
const runWaitDelay = 3 * time.Second

// Result captures a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
}

// Run executes a command and waits for it to finish.
//
// With args, the command is invoked directly with that argv. Without
// args, the raw command string goes through the platform shell
// ("sh -c" or "cmd /C") so pipelines and redirects keep working.
// A non-zero exit is not an error; the exit code lands in Result.
func Run(ctx context.Context, command string, args []string, cwd string) (Result, error) {
	var cmd *exec.Cmd
	if args != nil {
		cmd = exec.CommandContext(ctx, command, args...)
	} else if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}

	cmd.WaitDelay = runWaitDelay

	if cwd != "" {
		cmd.Dir = cwd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		result.Success = true
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	// Spawn failure (binary not found, cwd missing, context canceled).
	result.ExitCode = -1
	return result, fmt.Errorf("execute %q: %w", command, err)
}

// Open launches an application detached from the daemon and returns its
// PID. Stdio is discarded and the process is released so it outlives us.
func Open(application string, args []string, cwd string) (int, error) {
	cmd := exec.Command(application, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launch %q: %w", application, err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release %q (pid %d): %w", application, pid, err)
	}
	return pid, nil
}
