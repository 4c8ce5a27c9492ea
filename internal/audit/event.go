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

// Package audit provides a tamper-evident audit trail for daemon requests.
//
// Every request the daemon dispatches — allowed or denied — is recorded as
// an Event with a cryptographic hash chain. Each event's hash includes the
// previous event's hash, creating an append-only chain where any tampering
// is detectable.
package audit

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event represents a single audited request.
//
// Events are written to the audit trail in JSONL format, one per line.
// The hash chain ensures integrity: modifying any event breaks the chain
// for all subsequent events.
type Event struct {
	// ID is a ULID — time-ordered, lexicographically sortable, unique.
	ID string `json:"id"`

	// Timestamp is when the request arrived (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Op is the dispatched operation ("exec", "read", "write", "scan",
	// "delete", "create", "rename", "open", "shutdown").
	Op string `json:"op"`

	// Request summarizes the caller's parameters (path, command, cwd).
	// Large values such as file content are never recorded, only sizes.
	Request map[string]any `json:"request,omitempty"`

	// Verdict records the policy engine's decision.
	Verdict EventVerdict `json:"verdict"`

	// Outcome captures the OS operation result for allowed requests.
	// Nil for denied requests, which never touch the OS.
	Outcome *Outcome `json:"outcome,omitempty"`

	// PrevHash is the hash of the preceding event in the chain.
	// Empty string for the first event.
	PrevHash string `json:"prev_hash"`

	// Hash is the SHA-256 hash of this event (excluding the hash field
	// itself), computed by ComputeHash after all other fields are set.
	Hash string `json:"hash"`
}

// EventVerdict is the policy decision recorded in an audit event.
type EventVerdict struct {
	// Allowed is the binary policy outcome.
	Allowed bool `json:"allowed"`

	// Reason is the denial reason, empty for allowed requests.
	Reason string `json:"reason,omitempty"`
}

// Outcome is the OS-level result of an allowed request. It is distinct
// from the verdict so operators can tell "blocked by policy" apart from
// "allowed but failed".
type Outcome struct {
	// OK reports whether the OS operation succeeded.
	OK bool `json:"ok"`

	// Error describes the OS failure, empty on success.
	Error string `json:"error,omitempty"`

	// DurationMS is how long the operation took.
	DurationMS int64 `json:"duration_ms"`
}

// ComputeHash calculates the SHA-256 hash for this event.
//
// The hash covers all fields except Hash itself and incorporates
// PrevHash, creating the chain:
//
//	hash(event_N) = SHA-256(prev_hash + json(event_N without hash))
func (e *Event) ComputeHash() error {
	e.Hash = ""

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal event for hashing: %w", err)
	}

	payload := append([]byte(e.PrevHash), data...)
	h := sha256.Sum256(payload)
	e.Hash = "sha256:" + hex.EncodeToString(h[:])
	return nil
}

// VerifyHash checks whether the event's hash is correct.
func (e *Event) VerifyHash() (bool, error) {
	expected := e.Hash

	if err := e.ComputeHash(); err != nil {
		return false, err
	}
	computed := e.Hash
	e.Hash = expected

	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil
}
