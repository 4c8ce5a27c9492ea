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

package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/muhammad-fiaz/exex/internal/execrun"
	"github.com/muhammad-fiaz/exex/internal/policy"
)

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	var req execRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	summary := map[string]any{"command": req.Command}
	if req.Cwd != "" {
		summary["cwd"] = req.Cwd
	}

	verdict := s.engine.CommandDecision(req.Command)
	if verdict.Denied() {
		s.logger.Warn("server: command execution denied", "command", req.Command, "reason", verdict.Reason)
		s.record("exec", summary, verdict, nil)
		writeError(w, http.StatusForbidden,
			fmt.Sprintf("Command '%s' is not allowed by security policy", req.Command))
		return
	}

	if !policy.CommandSafe(req.Command) {
		verdict = policy.Deny("command %q matches a destructive pattern", req.Command)
		s.logger.Warn("server: command deemed unsafe", "command", req.Command)
		s.record("exec", summary, verdict, nil)
		writeError(w, http.StatusForbidden,
			fmt.Sprintf("Command '%s' is not allowed by security policy", req.Command))
		return
	}

	if req.Cwd != "" {
		if cwdVerdict := s.engine.PathDecision(req.Cwd); cwdVerdict.Denied() {
			s.logger.Warn("server: working directory denied", "cwd", req.Cwd, "reason", cwdVerdict.Reason)
			s.record("exec", summary, cwdVerdict, nil)
			writeError(w, http.StatusForbidden,
				fmt.Sprintf("Access denied to directory: %s", req.Cwd))
			return
		}
	}

	s.logger.Info("server: executing command", "command", req.Command, "args", req.Args, "cwd", req.Cwd)

	start := time.Now()
	result, err := execrun.Run(r.Context(), req.Command, req.Args, req.Cwd)
	outcome := newOutcome(start, err)
	outcome.OK = err == nil && result.Success
	s.record("exec", summary, verdict, outcome)

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to execute command: %v", err),
		})
		return
	}

	exitCode := result.ExitCode
	writeJSON(w, http.StatusOK, execResponse{
		Success:  result.Success,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: &exitCode,
	})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	var req openRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	summary := map[string]any{"application": req.Application}
	if req.Cwd != "" {
		summary["cwd"] = req.Cwd
	}

	verdict := s.engine.PathDecision(req.Application)
	if verdict.Denied() {
		s.record("open", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, openResponse{
			Error: fmt.Sprintf("Access denied to application: %s", req.Application),
		})
		return
	}

	if !policy.CommandSafe(req.Application) {
		verdict = policy.Deny("application %q matches a destructive pattern", req.Application)
		s.record("open", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, openResponse{
			Error: fmt.Sprintf("Application deemed unsafe: %s", req.Application),
		})
		return
	}

	if req.Cwd != "" {
		if cwdVerdict := s.engine.PathDecision(req.Cwd); cwdVerdict.Denied() {
			s.record("open", summary, cwdVerdict, nil)
			writeJSON(w, http.StatusForbidden, openResponse{
				Error: fmt.Sprintf("Access denied to working directory: %s", req.Cwd),
			})
			return
		}
	}

	s.logger.Info("server: opening application", "application", req.Application)

	start := time.Now()
	pid, err := execrun.Open(req.Application, req.Args, req.Cwd)
	outcome := newOutcome(start, err)
	s.record("open", summary, verdict, outcome)

	if err != nil {
		writeJSON(w, http.StatusOK, openResponse{
			Error: fmt.Sprintf("Failed to launch application: %v", err),
		})
		return
	}

	s.logger.Info("server: application launched", "application", req.Application, "pid", pid)
	writeJSON(w, http.StatusOK, openResponse{Success: true, PID: &pid})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}

	s.logger.Info("server: shutdown requested")
	s.record("shutdown", nil, policy.Allow(), nil)

	writeJSON(w, http.StatusOK, shutdownResponse{
		Success:           true,
		Message:           "Server shutdown initiated",
		ShutdownInSeconds: int(s.shutdownDelay.Seconds()),
	})

	go func() {
		time.Sleep(s.shutdownDelay)
		if s.requestStop != nil {
			s.requestStop()
			return
		}
		s.logger.Warn("server: no stop function wired, shutdown request ignored")
	}()
}
