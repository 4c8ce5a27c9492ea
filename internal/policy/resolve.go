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

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// defaultResolveTimeout bounds the filesystem lookups a single resolution
// may spend. Canonicalization touches the disk (symlink traversal), and a
// stalled mount must not hang request dispatch; a timeout counts as a
// resolution failure, which maps to Deny.
const defaultResolveTimeout = 2 * time.Second

// ErrResolveTimeout is returned when canonicalization exceeds the
// resolver's timeout.
var ErrResolveTimeout = errors.New("policy: path resolution timed out")

// resolver turns caller-supplied path strings into the canonical absolute
// form the rule store compares against.
type resolver struct {
	timeout time.Duration

	// canonicalizeFn overrides the filesystem canonicalization step.
	// Nil means the real canonicalize; tests substitute a slow one.
	canonicalizeFn func(string) (string, error)
}

// Resolve canonicalizes raw: absolute, relative segments collapsed,
// symlinks followed. If the exact path cannot be canonicalized (commonly a
// leaf about to be created), the parent directory is canonicalized and the
// leaf name re-appended. If the parent cannot be canonicalized either,
// resolution fails — the caller must treat that as Deny, never as an
// implicit allow.
func (r *resolver) Resolve(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("policy: empty path")
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}

	canonFn := r.canonicalizeFn
	if canonFn == nil {
		canonFn = canonicalize
	}

	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := canonFn(raw)
		ch <- result{path: p, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.path, res.err
	case <-timer.C:
		return "", ErrResolveTimeout
	}
}

// canonicalize performs the blocking filesystem work of Resolve.
func canonicalize(raw string) (string, error) {
	cleaned := filepath.Clean(normalizeSlashes(raw))
	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("policy: absolutize %q: %w", raw, err)
		}
		cleaned = abs
	}

	if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
		return resolved, nil
	}

	// Leaf missing: canonicalize the parent and re-append the base name.
	parent := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	resolvedParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return "", fmt.Errorf("policy: resolve %q: parent %q: %w", raw, parent, err)
	}
	return filepath.Join(resolvedParent, base), nil
}
