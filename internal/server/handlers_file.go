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

	"github.com/muhammad-fiaz/exex/internal/audit"
	"github.com/muhammad-fiaz/exex/internal/fsops"
	"github.com/muhammad-fiaz/exex/internal/policy"
)

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	var req readRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	summary := map[string]any{"path": req.Path}

	verdict := s.engine.PathDecision(req.Path)
	if verdict.Denied() {
		s.record("read", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, readResponse{
			Error: fmt.Sprintf("Access denied to file: %s", req.Path),
		})
		return
	}

	s.logger.Info("server: reading file", "path", req.Path)

	start := time.Now()
	content, err := fsops.Read(req.Path, s.engine.MaxFileSize())
	outcome := newOutcome(start, err)
	s.record("read", summary, verdict, outcome)

	if err != nil {
		writeJSON(w, http.StatusOK, readResponse{
			Error: fmt.Sprintf("Failed to read file: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, readResponse{Success: true, Content: &content})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	var req writeRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	summary := map[string]any{"path": req.Path, "content_bytes": len(req.Content)}

	verdict := s.engine.PathDecision(req.Path)
	if verdict.Denied() {
		s.record("write", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, writeResponse{
			Error: fmt.Sprintf("Access denied to file: %s", req.Path),
		})
		return
	}

	content := policy.SanitizeContent(req.Content)

	if !s.engine.IsFileSizeAllowed(int64(len(content))) {
		verdict = policy.Deny("content of %d bytes exceeds maximum allowed size", len(content))
		s.record("write", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, writeResponse{Error: verdict.Reason})
		return
	}

	s.logger.Info("server: writing file", "path", req.Path, "bytes", len(content))

	start := time.Now()
	err := fsops.Write(req.Path, content)
	outcome := newOutcome(start, err)
	s.record("write", summary, verdict, outcome)

	if err != nil {
		writeJSON(w, http.StatusOK, writeResponse{
			Error: fmt.Sprintf("Failed to write file: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{Success: true})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	var req scanRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	summary := map[string]any{
		"path":      req.Path,
		"recursive": req.Recursive,
	}

	verdict := s.engine.PathDecision(req.Path)
	if verdict.Denied() {
		s.record("scan", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, scanResponse{
			Error: fmt.Sprintf("Access denied to directory: %s", req.Path),
		})
		return
	}

	s.logger.Info("server: scanning directory", "path", req.Path, "recursive", req.Recursive)

	start := time.Now()
	items, err := fsops.Scan(req.Path, fsops.ScanOptions{
		Recursive:     req.Recursive,
		IncludeHidden: req.IncludeHidden,
		PathAllowed:   s.engine.IsPathAllowed,
	})
	outcome := newOutcome(start, err)
	s.record("scan", summary, verdict, outcome)

	if err != nil {
		writeJSON(w, http.StatusOK, scanResponse{
			Error: fmt.Sprintf("Failed to scan directory: %v", err),
		})
		return
	}

	count := len(items)
	writeJSON(w, http.StatusOK, scanResponse{
		Success:    true,
		Items:      items,
		TotalCount: &count,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	var req deleteRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	summary := map[string]any{"path": req.Path, "recursive": req.Recursive}

	verdict := s.engine.PathDecision(req.Path)
	if verdict.Denied() {
		s.record("delete", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, deleteResponse{
			Error: fmt.Sprintf("Access denied to delete: %s", req.Path),
		})
		return
	}

	s.logger.Info("server: deleting item", "path", req.Path, "recursive", req.Recursive)

	start := time.Now()
	count, err := fsops.Delete(req.Path, req.Recursive)
	outcome := newOutcome(start, err)
	s.record("delete", summary, verdict, outcome)

	if err != nil {
		writeJSON(w, http.StatusOK, deleteResponse{
			Error: fmt.Sprintf("Failed to delete: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, DeletedCount: &count})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	var req createRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	summary := map[string]any{
		"path":          req.Path,
		"is_directory":  req.IsDirectory,
		"content_bytes": len(req.Content),
	}

	verdict := s.engine.PathDecision(req.Path)
	if verdict.Denied() {
		s.record("create", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, createResponse{
			Error: fmt.Sprintf("Access denied to create: %s", req.Path),
		})
		return
	}

	s.logger.Info("server: creating item", "path", req.Path, "directory", req.IsDirectory)

	content := policy.SanitizeContent(req.Content)

	start := time.Now()
	createdPath, err := fsops.Create(req.Path, req.IsDirectory, content)
	outcome := newOutcome(start, err)
	s.record("create", summary, verdict, outcome)

	if err != nil {
		writeJSON(w, http.StatusOK, createResponse{
			Error: fmt.Sprintf("Failed to create: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, createResponse{Success: true, CreatedPath: createdPath})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	var req renameRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	summary := map[string]any{"from_path": req.FromPath, "to_path": req.ToPath}

	// Both endpoints need a verdict: moving a file out of an allowed
	// tree into a denied one is still a denied-tree mutation.
	verdict := s.engine.PathDecision(req.FromPath)
	if verdict.Denied() {
		s.record("rename", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, renameResponse{
			Error: fmt.Sprintf("Access denied to source path: %s", req.FromPath),
		})
		return
	}

	verdict = s.engine.PathDecision(req.ToPath)
	if verdict.Denied() {
		s.record("rename", summary, verdict, nil)
		writeJSON(w, http.StatusForbidden, renameResponse{
			Error: fmt.Sprintf("Access denied to destination path: %s", req.ToPath),
		})
		return
	}

	s.logger.Info("server: renaming item", "from", req.FromPath, "to", req.ToPath)

	start := time.Now()
	err := fsops.Rename(req.FromPath, req.ToPath)
	outcome := newOutcome(start, err)
	s.record("rename", summary, verdict, outcome)

	if err != nil {
		writeJSON(w, http.StatusOK, renameResponse{
			Error: fmt.Sprintf("Failed to rename/move: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, renameResponse{
		Success: true,
		OldPath: req.FromPath,
		NewPath: req.ToPath,
	})
}

func newOutcome(start time.Time, err error) *audit.Outcome {
	outcome := &audit.Outcome{
		OK:         err == nil,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	return outcome
}
