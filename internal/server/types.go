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

import "github.com/muhammad-fiaz/exex/internal/fsops"

// Wire types for the daemon's JSON API. Denials and OS failures share
// the same response shapes; "success" plus "error" tell them apart,
// while the HTTP status separates policy denials (403) from OS failures
// (200 with success=false).

type execRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
}

type execResponse struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
}

type readRequest struct {
	Path string `json:"path"`
}

type readResponse struct {
	Success bool    `json:"success"`
	Content *string `json:"content,omitempty"`
	Error   string  `json:"error,omitempty"`
}

type writeRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type writeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type scanRequest struct {
	Path          string `json:"path"`
	Recursive     bool   `json:"recursive,omitempty"`
	IncludeHidden bool   `json:"include_hidden,omitempty"`
}

type scanResponse struct {
	Success    bool             `json:"success"`
	Items      []fsops.FileInfo `json:"items,omitempty"`
	TotalCount *int             `json:"total_count,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type deleteRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive,omitempty"`
}

type deleteResponse struct {
	Success      bool   `json:"success"`
	DeletedCount *int   `json:"deleted_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

type createRequest struct {
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	Content     string `json:"content,omitempty"`
}

type createResponse struct {
	Success     bool   `json:"success"`
	CreatedPath string `json:"created_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

type renameRequest struct {
	FromPath string `json:"from_path"`
	ToPath   string `json:"to_path"`
}

type renameResponse struct {
	Success bool   `json:"success"`
	OldPath string `json:"old_path,omitempty"`
	NewPath string `json:"new_path,omitempty"`
	Error   string `json:"error,omitempty"`
}

type openRequest struct {
	Application string   `json:"application"`
	Args        []string `json:"args,omitempty"`
	Cwd         string   `json:"cwd,omitempty"`
}

type openResponse struct {
	Success bool   `json:"success"`
	PID     *int   `json:"pid,omitempty"`
	Error   string `json:"error,omitempty"`
}

type shutdownResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	ShutdownInSeconds int    `json:"shutdown_in_seconds"`
}
