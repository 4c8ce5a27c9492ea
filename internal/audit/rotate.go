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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func (s *JSONLSink) shouldRotateLocked(incoming int) bool {
	if s.rotateSize <= 0 {
		return false
	}
	return s.currentSize+int64(incoming) > s.rotateSize
}

// dayChangedLocked reports whether the current UTC date differs from the
// date encoded in the current filename.
func (s *JSONLSink) dayChangedLocked() bool {
	today := time.Now().UTC().Format("2006-01-02")
	// currentFile is "YYYY-MM-DD.jsonl" or "YYYY-MM-DD.pN.jsonl".
	return !strings.HasPrefix(s.currentFile, today)
}

// openCurrentLocked opens (or creates) today's file for appending.
func (s *JSONLSink) openCurrentLocked() error {
	return s.openNamedLocked(s.dailyFilenameLocked())
}

func (s *JSONLSink) rotateLocked() error {
	prevFile := s.currentFile
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("audit: close rotated file: %w", err)
		}
		s.file = nil
	}

	var name string
	today := time.Now().UTC().Format("2006-01-02")
	if strings.HasPrefix(prevFile, today) {
		// Same day: size rotation, use a sequence number.
		name = s.nextRotatedFilenameLocked()
	} else {
		name = s.dailyFilenameLocked()
	}

	if err := s.openNamedLocked(name); err != nil {
		return err
	}

	s.logger.Info("audit: rotated jsonl file",
		"file", s.currentFile,
		"prev_file", prevFile,
		"last_hash", s.lastHash,
	)

	return nil
}

func (s *JSONLSink) openNamedLocked(name string) error {
	path := filepath.Join(s.dir, name)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open jsonl file: %w", err)
	}

	// The file may already exist from earlier today.
	info, statErr := file.Stat()
	if statErr != nil {
		file.Close()
		return fmt.Errorf("audit: stat jsonl file: %w", statErr)
	}

	s.file = file
	s.currentFile = name
	s.currentSize = info.Size()
	return nil
}

func (s *JSONLSink) dailyFilenameLocked() string {
	return time.Now().UTC().Format("2006-01-02") + ".jsonl"
}

// nextRotatedFilenameLocked returns a sequenced filename for size-based
// rotation within the same day, e.g. "2026-02-13.p01.jsonl". Zero-padded
// so lexical order stays chronological.
func (s *JSONLSink) nextRotatedFilenameLocked() string {
	today := time.Now().UTC().Format("2006-01-02")
	for seq := 1; ; seq++ {
		name := fmt.Sprintf("%s.p%02d.jsonl", today, seq)
		if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
			return name
		}
	}
}
