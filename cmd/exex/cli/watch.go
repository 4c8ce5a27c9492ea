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

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muhammad-fiaz/exex/internal/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var auditDir string
	var verdict string
	var op string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live TUI dashboard for audit events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolvedDir := auditDir
			if resolvedDir == "" {
				logger := newLogger(opts)
				cfg, _ := loadConfig(opts, logger)
				resolvedDir = cfg.Logging.AuditDir
			}
			expanded, err := expandHome(resolvedDir)
			if err != nil {
				return err
			}
			expanded = filepath.Clean(expanded)

			if err := os.MkdirAll(expanded, 0o700); err != nil {
				return fmt.Errorf("watch: create audit dir: %w", err)
			}

			latestFile, err := latestAuditFile(expanded)
			if err != nil {
				return fmt.Errorf("watch: find audit file: %w", err)
			}

			return watch.Run(cmd.Context(), watch.Config{
				AuditFile: latestFile,
				Verdict:   verdict,
				Op:        op,
				Out:       cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&auditDir, "audit-dir", "", "Directory containing audit JSONL files (default: config audit dir)")
	cmd.Flags().StringVar(&verdict, "verdict", "", "Filter by verdict (allow, deny, failed)")
	cmd.Flags().StringVar(&op, "op", "", "Filter by operation (e.g. exec, read, write)")

	return cmd
}

// latestAuditFile returns the most recently modified *.jsonl file in dir.
// Falls back to a predicted daily filename if no files exist yet.
func latestAuditFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		today := time.Now().UTC().Format("2006-01-02")
		return filepath.Join(dir, today+".jsonl"), nil
	}

	var latest string
	var latestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latest = m
		}
	}
	if latest == "" {
		sort.Strings(matches)
		latest = matches[len(matches)-1]
	}
	return latest, nil
}

func expandHome(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("watch: audit dir is empty")
	}
	if !strings.HasPrefix(trimmed, "~/") && trimmed != "~" {
		return trimmed, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("watch: resolve home directory: %w", err)
	}
	if trimmed == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(trimmed, "~/")), nil
}
