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

package policy

import "strings"

// destructiveFragments are substrings that mark a command as destructive
// regardless of whitelist status: disk formatting, recursive deletion,
// shutdown/reboot, and user/group/registry/service mutation. Matching is
// case-insensitive over the full raw command string. This is a coarse
// heuristic, not a parser; the whitelist/blacklist logic remains the
// primary gate.
var destructiveFragments = []string{
	"format", "del", "rmdir", "rd", "deltree",
	"shutdown", "restart", "reboot",
	"net user", "net localgroup",
	"reg delete", "reg add",
	"sc delete", "sc create",
}

// CommandSafe reports whether the raw command string avoids every
// destructive fragment. It never overrides a whitelist/blacklist denial;
// it only adds denials on top.
func CommandSafe(command string) bool {
	lower := strings.ToLower(command)
	for _, fragment := range destructiveFragments {
		if strings.Contains(lower, fragment) {
			return false
		}
	}
	return true
}
