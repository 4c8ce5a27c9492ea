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

	"github.com/spf13/cobra"

	"github.com/muhammad-fiaz/exex/internal/policy"
)

// deniedError carries exit code 2 so scripts can tell "denied" apart
// from "broken".
type deniedError struct {
	reason string
}

func (e *deniedError) Error() string { return e.reason }

func (e *deniedError) ExitCode() int { return 2 }

func newCheckCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a candidate path or command against the policy",
	}
	cmd.AddCommand(newCheckPathCmd(opts))
	cmd.AddCommand(newCheckCommandCmd(opts))
	return cmd
}

func buildEngine(opts *rootOptions) *policy.Engine {
	logger := newLogger(opts)
	cfg, _ := loadConfig(opts, logger)

	store := policy.NewRuleStore(policy.Ruleset{
		AllowedPaths:     cfg.Security.AllowedPaths,
		DisallowedPaths:  cfg.Security.DisallowedPaths,
		CommandWhitelist: cfg.Security.CommandWhitelist,
		CommandBlacklist: cfg.Security.CommandBlacklist,
		MaxFileSize:      cfg.Security.MaxFileSizeBytes(),
		DefaultDeny:      cfg.Security.DefaultDeny(),
	}, logger)
	return policy.NewEngine(store, policy.WithLogger(logger))
}

func newCheckPathCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path <path>",
		Short: "Print the policy verdict for a filesystem path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verdict := buildEngine(opts).PathDecision(args[0])
			if verdict.Denied() {
				fmt.Fprintf(cmd.OutOrStdout(), "deny: %s\n", verdict.Reason)
				return &deniedError{reason: verdict.Reason}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "allow")
			return nil
		},
	}
}

func newCheckCommandCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "command <command>",
		Short: "Print the policy verdict for a command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := args[0]
			for _, extra := range args[1:] {
				raw += " " + extra
			}

			verdict := buildEngine(opts).CommandDecision(raw)
			if verdict.Denied() {
				fmt.Fprintf(cmd.OutOrStdout(), "deny: %s\n", verdict.Reason)
				return &deniedError{reason: verdict.Reason}
			}
			if !policy.CommandSafe(raw) {
				reason := "command matches a destructive pattern"
				fmt.Fprintf(cmd.OutOrStdout(), "deny: %s\n", reason)
				return &deniedError{reason: reason}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "allow: %s\n", policy.CommandIdentifier(raw))
			return nil
		},
	}
}
