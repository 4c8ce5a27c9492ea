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

// Package watch provides the live terminal dashboard for audit events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/muhammad-fiaz/exex/internal/audit"
)

const defaultTailPoll = 250 * time.Millisecond

// tailEvent is one unit delivered by the tail goroutine: a decoded audit
// event, or an error the dashboard should surface without dying.
type tailEvent struct {
	event audit.Event
	err   error
}

// auditTail streams events appended to the active audit JSONL file. The
// sink rotates by day and by size, so the tail watches the whole directory
// and hops to whichever .jsonl file the sink opens next.
type auditTail struct {
	file   string
	offset int64
	out    chan tailEvent

	newWatcher func() (*fsnotify.Watcher, error)
	pollEvery  time.Duration
}

func newAuditTail(file string) *auditTail {
	return &auditTail{
		file:       file,
		out:        make(chan tailEvent, 128),
		newWatcher: fsnotify.NewWatcher,
		pollEvery:  defaultTailPoll,
	}
}

// start launches the tail goroutine. The returned channel closes when ctx
// is canceled or the filesystem watcher dies.
func (t *auditTail) start(ctx context.Context) <-chan tailEvent {
	go t.run(ctx)
	return t.out
}

func (t *auditTail) run(ctx context.Context) {
	defer close(t.out)

	if strings.TrimSpace(t.file) == "" {
		t.out <- tailEvent{err: errors.New("watch: audit file path is empty")}
		return
	}

	watcher, err := t.newWatcher()
	if err != nil {
		t.out <- tailEvent{err: fmt.Errorf("watch: create file watcher: %w", err)}
		return
	}
	defer watcher.Close()

	// Rotation creates sibling files, so the directory is the real
	// subject; the active file itself may not exist yet.
	if err := watcher.Add(filepath.Dir(t.file)); err != nil {
		t.out <- tailEvent{err: fmt.Errorf("watch: watch audit directory: %w", err)}
		return
	}
	_ = watcher.Add(t.file)

	t.flush()

	// fsnotify misses appends on some platforms; a coarse poll backstops it.
	poll := time.NewTicker(t.pollEvery)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			t.flush()
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			t.handleNotify(watcher, evt)
		case err, ok := <-watcher.Errors:
			if ok {
				t.out <- tailEvent{err: fmt.Errorf("watch: watcher error: %w", err)}
			}
		}
	}
}

// handleNotify reacts to a single directory notification: hop to freshly
// rotated files, restart after removal, read newly appended lines.
func (t *auditTail) handleNotify(watcher *fsnotify.Watcher, evt fsnotify.Event) {
	name := filepath.Clean(evt.Name)
	active := filepath.Clean(t.file)

	if evt.Has(fsnotify.Create) && name != active && strings.HasSuffix(name, ".jsonl") {
		// The sink rotated; follow the new file from its start.
		t.file = name
		t.offset = 0
		_ = watcher.Add(name)
		active = name
	}

	if name != active {
		return
	}

	switch {
	case evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename):
		t.offset = 0
	case evt.Has(fsnotify.Create):
		_ = watcher.Add(t.file)
		t.offset = 0
		t.flush()
	case evt.Has(fsnotify.Write) || evt.Has(fsnotify.Chmod):
		t.flush()
	}
}

// flush publishes everything appended since the last offset.
func (t *auditTail) flush() {
	events, next, err := audit.ReadEventsFromOffset(t.file, t.offset)
	if err != nil {
		if os.IsNotExist(err) {
			// The active file is gone (rotation race); retry from zero.
			t.offset = 0
			return
		}
		t.out <- tailEvent{err: err}
		return
	}

	t.offset = next
	for _, event := range events {
		t.out <- tailEvent{event: event}
	}
}
