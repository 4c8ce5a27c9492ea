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

// Package policy implements EXEX's access-control engine.
//
// The engine answers two questions for every incoming request: may this
// filesystem path be touched, and may this command be run. Evaluation is
// purely functional over an immutable RuleStore built once at startup, so
// any number of concurrent requests can consult it without locking.
//
// Path decisions follow a fixed precedence: an allow-list prefix match
// overrides any deny rule, a deny-list prefix match blocks, and anything
// outside both lists falls through to the configured default (which ships
// as allow — the daemon is deliberately default-permissive outside the
// deny list, and operators are expected to enumerate everything dangerous
// there).
//
// This package is the core of EXEX. It has zero external dependencies
// and never panics; every failure path resolves to a verdict.
package policy

import "fmt"

// Verdict is the binary outcome of a policy decision. There is no partial
// or uncertain state: every evaluation resolves to Allow or Deny.
type Verdict struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Reason is a human-readable explanation, set on denials. It is
	// surfaced to the caller and recorded in the audit trail.
	Reason string
}

// Allow returns a permitting verdict.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Deny returns a blocking verdict with a reason.
func Deny(format string, args ...any) Verdict {
	return Verdict{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Denied reports whether the request was blocked.
func (v Verdict) Denied() bool {
	return !v.Allowed
}

// String returns "allow" or "deny".
func (v Verdict) String() string {
	if v.Allowed {
		return "allow"
	}
	return "deny"
}
