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

package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes one directory entry returned by Scan.
type FileInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	Size        *int64 `json:"size,omitempty"`
	Modified    int64  `json:"modified,omitempty"`
	Mode        string `json:"permissions,omitempty"`
}

// ScanOptions controls directory scanning.
type ScanOptions struct {
	Recursive     bool
	IncludeHidden bool

	// PathAllowed re-checks subdirectories during recursive scans so a
	// walk cannot wander from an allowed root into a denied subtree.
	// Nil means no re-check (single-level scans don't need one).
	PathAllowed func(path string) bool
}

// Scan lists the entries of a directory. With Recursive set it walks
// subdirectories iteratively, skipping any subtree PathAllowed rejects.
// Unreadable subdirectories are skipped, not fatal.
func Scan(root string, opts ScanOptions) ([]FileInfo, error) {
	if !opts.Recursive {
		return scanSingle(root, opts.IncludeHidden)
	}

	var items []FileInfo
	stack := []string{root}
	first := true

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if opts.PathAllowed != nil && !opts.PathAllowed(dir) {
			continue
		}

		entries, err := scanSingle(dir, opts.IncludeHidden)
		if err != nil {
			// The root must be readable; descendants are best-effort.
			if first {
				return nil, err
			}
			continue
		}
		first = false

		for _, item := range entries {
			if item.IsDirectory {
				stack = append(stack, item.Path)
			}
			items = append(items, item)
		}
	}

	return items, nil
}

func scanSingle(dir string, includeHidden bool) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	items := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !includeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		item := FileInfo{
			Name:        name,
			Path:        filepath.Join(dir, name),
			IsDirectory: info.IsDir(),
			Modified:    info.ModTime().Unix(),
			Mode:        info.Mode().String(),
		}
		if !info.IsDir() {
			size := info.Size()
			item.Size = &size
		}
		items = append(items, item)
	}

	return items, nil
}
