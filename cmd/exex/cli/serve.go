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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/muhammad-fiaz/exex/internal/audit"
	"github.com/muhammad-fiaz/exex/internal/config"
	"github.com/muhammad-fiaz/exex/internal/policy"
	"github.com/muhammad-fiaz/exex/internal/server"
)

type serveDeps struct {
	newWatcher    func() (*fsnotify.Watcher, error)
	notifyContext func(context.Context, ...os.Signal) (context.Context, context.CancelFunc)
}

func defaultServeDeps() serveDeps {
	return serveDeps{
		newWatcher:    fsnotify.NewWatcher,
		notifyContext: signal.NotifyContext,
	}
}

func newServeCmd(opts *rootOptions, deps *serveDeps) *cobra.Command {
	var listenAddr string
	var port int
	var auditDir string
	var token string
	var metrics bool
	var noFsync bool

	resolvedDeps := defaultServeDeps()
	if deps != nil {
		if deps.newWatcher != nil {
			resolvedDeps.newWatcher = deps.newWatcher
		}
		if deps.notifyContext != nil {
			resolvedDeps.notifyContext = deps.notifyContext
		}
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the exex daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listenAddr != "" && net.ParseIP(listenAddr) == nil {
				return fmt.Errorf("serve: invalid --addr %q (must be a valid IP address, e.g. 127.0.0.1 or ::1)", listenAddr)
			}

			logger := newLogger(opts)
			cfg, cfgPath := loadConfig(opts, logger)
			config.WarnMissingCriticalPaths(cfg, logger)

			if opts.verbose {
				logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			} else {
				logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))
			}

			store := policy.NewRuleStore(policy.Ruleset{
				AllowedPaths:     cfg.Security.AllowedPaths,
				DisallowedPaths:  cfg.Security.DisallowedPaths,
				CommandWhitelist: cfg.Security.CommandWhitelist,
				CommandBlacklist: cfg.Security.CommandBlacklist,
				MaxFileSize:      cfg.Security.MaxFileSizeBytes(),
				DefaultDeny:      cfg.Security.DefaultDeny(),
			}, logger)
			eng := policy.NewEngine(store, policy.WithLogger(logger))

			if auditDir == "" {
				auditDir = cfg.Logging.AuditDir
			}
			sinkOpts := []audit.SinkOption{audit.WithLogger(logger)}
			if noFsync {
				sinkOpts = append(sinkOpts, audit.WithFsync(false))
			}
			sink, err := audit.NewJSONLSink(auditDir, sinkOpts...)
			if err != nil {
				return fmt.Errorf("serve: create audit sink: %w", err)
			}
			defer func() {
				_ = sink.Close()
			}()

			sigCtx, stop := resolvedDeps.notifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if port == 0 {
				port = cfg.Server.Port
			}
			host := listenAddr
			if host == "" {
				host = cfg.Server.Host
			}

			if token == "" {
				token = os.Getenv("EXEX_TOKEN")
			}

			srv := server.New(eng, sink,
				server.WithLogger(logger),
				server.WithToken(token),
				server.WithMetrics(metrics),
				server.WithStopFunc(stop),
			)

			// Config edits never rearm the rule store; the watcher only
			// tells the operator a restart is needed.
			watcher, err := resolvedDeps.newWatcher()
			if err != nil {
				return fmt.Errorf("serve: create file watcher: %w", err)
			}
			defer func() {
				_ = watcher.Close()
			}()

			var configAbs string
			if cfgPath != "" {
				configAbs, err = filepath.Abs(cfgPath)
				if err != nil {
					return fmt.Errorf("serve: resolve config path %s: %w", cfgPath, err)
				}
				if err := watcher.Add(filepath.Dir(configAbs)); err != nil {
					logger.Warn("serve: cannot watch config file", "path", configAbs, "error", err)
				}
			}

			logger.Info("serve: started",
				"addr", fmt.Sprintf("%s:%d", host, port),
				"audit_dir", auditDir,
				"allowed_paths", len(store.AllowedPaths()),
				"denied_paths", len(store.DeniedPaths()),
			)
			if metrics {
				logger.Info("serve: metrics enabled on /metrics")
			}

			serveErrCh := make(chan error, 1)
			go func() {
				serveErrCh <- srv.ListenAndServe(fmt.Sprintf("%s:%d", host, port))
			}()

			lastNotice := time.Time{}
			for {
				select {
				case <-sigCtx.Done():
					logger.Info("serve: shutting down...")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					if err := srv.Shutdown(shutdownCtx); err != nil {
						logger.Error("serve: shutdown failed", "error", err)
					}
					cancel()
					if err := sink.Flush(); err != nil {
						logger.Error("serve: flush audit sink failed", "error", err)
					}
					return nil
				case err := <-serveErrCh:
					if err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("serve: server failed: %w", err)
					}
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if configAbs == "" || !event.Has(fsnotify.Write) || filepath.Clean(event.Name) != configAbs {
						continue
					}
					now := time.Now()
					if !lastNotice.IsZero() && now.Sub(lastNotice) < 500*time.Millisecond {
						continue
					}
					lastNotice = now
					logger.Warn("serve: config file changed, restart to apply", "path", configAbs)
				case err, ok := <-watcher.Errors:
					if !ok {
						continue
					}
					logger.Error("serve: watcher error", "error", err)
				}
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "addr", "", "Bind address (default: config host, typically 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default: config port)")
	cmd.Flags().StringVar(&auditDir, "audit-dir", "", "Directory for audit logs (default: config audit dir)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer auth token (default: $EXEX_TOKEN; empty disables auth)")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Enable Prometheus metrics endpoint on /metrics")
	cmd.Flags().BoolVar(&noFsync, "no-fsync", false, "Skip fsync on each audit write (faster, less durable)")

	return cmd
}

func newLogger(opts *rootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads from --config when given, otherwise the user config
// dir (bootstrapping defaults there on first run). It also returns the
// path the config came from, empty when falling back to built-ins.
func loadConfig(opts *rootOptions, logger *slog.Logger) (*config.Config, string) {
	if opts.configPath != "" {
		cfg, err := config.LoadPath(opts.configPath)
		if err != nil {
			logger.Error("cli: cannot load config, using defaults", "path", opts.configPath, "error", err)
			return config.Default(), ""
		}
		return cfg, opts.configPath
	}

	cfg := config.Load(logger)
	path, err := config.Path()
	if err != nil {
		return cfg, ""
	}
	return cfg, path
}
