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

package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Default returns the built-in configuration for the current OS. The deny
// list enumerates system trees that should never be touched by a remote
// caller; the allow list carves out temp and user work directories.
//
// Allow entries scoped to the user are expanded from the real home
// directory rather than wildcard placeholders: the policy engine compares
// prefixes literally and has no glob expansion.
func Default() *Config {
	disallowed, allowed := defaultPathRules()

	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Security: SecurityConfig{
			AllowedPaths:      allowed,
			DisallowedPaths:   disallowed,
			CommandWhitelist:  nil,
			CommandBlacklist:  []string{"mkfs", "dd", "shutdown", "reboot"},
			MaxFileSizeMB:     100,
			DefaultPathAction: "allow",
		},
		Logging: LoggingConfig{
			Level:    "info",
			AuditDir: defaultAuditDir(),
		},
	}
}

func defaultPathRules() (disallowed, allowed []string) {
	home, _ := os.UserHomeDir()

	switch runtime.GOOS {
	case "windows":
		disallowed = []string{
			`C:\Windows\`,
			`C:\Program Files\`,
			`C:\Program Files (x86)\`,
			`C:\ProgramData\`,
			`C:\System Volume Information\`,
			`C:\$Recycle.Bin\`,
		}
		allowed = []string{
			`C:\Windows\Temp\`,
			`C:\temp\`,
			`C:\tmp\`,
		}
		if home != "" {
			allowed = append(allowed,
				filepath.Join(home, "AppData", "Local", "EXEX"),
				filepath.Join(home, "Projects"),
			)
		}
	case "darwin":
		disallowed = []string{
			"/System/", "/Library/", "/Applications/",
			"/usr/", "/private/", "/etc/",
			"/bin/", "/sbin/", "/dev/", "/var/log/",
		}
		allowed = []string{"/tmp/", "/var/tmp/"}
		if home != "" {
			allowed = append(allowed,
				filepath.Join(home, "Projects"),
				filepath.Join(home, "Documents"),
				filepath.Join(home, "Downloads"),
				filepath.Join(home, "Desktop"),
			)
		}
	default:
		disallowed = []string{
			"/etc/", "/boot/", "/sys/", "/proc/", "/dev/",
			"/root/", "/usr/bin/", "/usr/sbin/",
			"/bin/", "/sbin/", "/var/log/",
			"/lib/", "/lib64/",
		}
		allowed = []string{"/tmp/", "/var/tmp/"}
		if home != "" {
			allowed = append(allowed,
				filepath.Join(home, "Projects"),
				filepath.Join(home, "Documents"),
				filepath.Join(home, "Downloads"),
				filepath.Join(home, "Desktop"),
			)
		}
	}

	return disallowed, allowed
}

// criticalPaths are the OS trees the validator warns about when absent
// from the deny list.
func criticalPaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{`C:\Windows`, `C:\Program Files`}
	case "darwin":
		return []string{"/System/", "/Library/"}
	default:
		return []string{"/etc/", "/usr/bin/", "/root/"}
	}
}

func defaultAuditDir() string {
	if dir, err := Dir(); err == nil {
		return filepath.Join(dir, "audit")
	}
	return "audit"
}
