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

// Package fsops performs the filesystem work behind the daemon's file
// endpoints. Callers are expected to have obtained a policy verdict
// before invoking anything here; these functions only talk to the OS.
package fsops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sentinel errors the HTTP layer maps onto response fields.
var (
	ErrTooLarge      = errors.New("file exceeds maximum allowed size")
	ErrAlreadyExists = errors.New("item already exists")
	ErrSourceMissing = errors.New("source path does not exist")
	ErrDestExists    = errors.New("destination path already exists")
)

// Read returns the file's content. If maxSize is positive and the file
// is larger, it returns ErrTooLarge without reading the content.
func Read(path string, maxSize int64) (string, error) {
	if maxSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() > maxSize {
			return "", fmt.Errorf("%s is %d bytes: %w", path, info.Size(), ErrTooLarge)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write writes content to path, creating parent directories as needed.
// Content sanitization happens before this call.
func Write(path, content string) error {
	if parent := filepath.Dir(path); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("create parent directories for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Delete removes a file or directory. Directories require recursive=true
// unless empty. Returns the number of top-level items removed (always 1
// on success, matching the wire contract).
func Delete(path string, recursive bool) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", path, err)
	}

	if !info.IsDir() {
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("delete %s: %w", path, err)
		}
		return 1, nil
	}

	if recursive {
		if err := os.RemoveAll(path); err != nil {
			return 0, fmt.Errorf("delete %s: %w", path, err)
		}
		return 1, nil
	}

	if err := os.Remove(path); err != nil {
		return 0, fmt.Errorf("delete %s: %w", path, err)
	}
	return 1, nil
}

// Create makes a new directory or file at path. The path must not exist.
// For files, parent directories are created and content is written as-is
// (sanitized by the caller). Returns the created path.
func Create(path string, isDirectory bool, content string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		return "", fmt.Errorf("create %s: %w", path, ErrAlreadyExists)
	}

	if isDirectory {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", path, err)
		}
		return path, nil
	}

	if err := Write(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// Rename moves a file or directory. The source must exist, the
// destination must not; destination parent directories are created.
func Rename(from, to string) error {
	if _, err := os.Lstat(from); err != nil {
		return fmt.Errorf("rename %s: %w", from, ErrSourceMissing)
	}
	if _, err := os.Lstat(to); err == nil {
		return fmt.Errorf("rename to %s: %w", to, ErrDestExists)
	}

	if parent := filepath.Dir(to); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("create parent directories for %s: %w", to, err)
		}
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", from, to, err)
	}
	return nil
}
