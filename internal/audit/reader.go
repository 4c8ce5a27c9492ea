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

package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ReadEventsFromOffset reads audit events from path starting at the given
// byte offset. Returns the parsed events, the new file offset, and any
// error. If the file has been truncated (offset > size), it resets to the
// beginning. Partial (unterminated) lines are not consumed — the offset
// stays before them so they can be re-read once complete.
func ReadEventsFromOffset(path string, offset int64) ([]Event, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("audit: stat %s: %w", path, err)
	}
	if offset > info.Size() {
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("audit: seek %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	cursor := offset
	events := make([]Event, 0, 8)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, cursor, fmt.Errorf("audit: read line: %w", err)
		}

		if line == "" && errors.Is(err, io.EOF) {
			return events, cursor, nil
		}

		if !strings.HasSuffix(line, "\n") {
			return events, cursor, nil
		}

		cursor += int64(len(line))
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if errors.Is(err, io.EOF) {
				return events, cursor, nil
			}
			continue
		}

		var evt Event
		if unmarshalErr := json.Unmarshal([]byte(trimmed), &evt); unmarshalErr == nil {
			events = append(events, evt)
		}

		if errors.Is(err, io.EOF) {
			return events, cursor, nil
		}
	}
}

// ListFiles returns the audit trail files in dir in chronological order.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("audit: read dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// VerifyChain replays the hash chain across the events of a single file
// and returns the index of the first broken event, or -1 if intact.
func VerifyChain(events []Event) (int, error) {
	prev := ""
	if len(events) > 0 {
		// A rotated file continues a chain started elsewhere.
		prev = events[0].PrevHash
	}
	for i := range events {
		if events[i].PrevHash != prev {
			return i, nil
		}
		ok, err := events[i].VerifyHash()
		if err != nil {
			return i, err
		}
		if !ok {
			return i, nil
		}
		prev = events[i].Hash
	}
	return -1, nil
}
