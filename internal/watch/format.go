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

package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/muhammad-fiaz/exex/internal/audit"
)

const (
	maxVisibleEvents = 1000
	maxSummaryWidth  = 80
)

// requestSummary picks the most useful request field for the feed line.
func requestSummary(event audit.Event) string {
	if event.Request == nil {
		return ""
	}

	if command, ok := event.Request["command"].(string); ok {
		return strings.TrimSpace(command)
	}
	if app, ok := event.Request["application"].(string); ok {
		return strings.TrimSpace(app)
	}
	if path, ok := event.Request["path"].(string); ok {
		summary := strings.TrimSpace(path)
		if size, ok := event.Request["content_bytes"].(float64); ok && size > 0 {
			summary += " (" + humanize.Bytes(uint64(size)) + ")"
		}
		return summary
	}
	if from, ok := event.Request["from_path"].(string); ok {
		if to, ok := event.Request["to_path"].(string); ok {
			return strings.TrimSpace(from) + " -> " + strings.TrimSpace(to)
		}
		return strings.TrimSpace(from)
	}

	for _, value := range event.Request {
		if str, ok := value.(string); ok {
			return strings.TrimSpace(str)
		}
	}

	return ""
}

func verdictLabel(event audit.Event) string {
	if !event.Verdict.Allowed {
		return "deny"
	}
	if event.Outcome != nil && !event.Outcome.OK {
		return "failed"
	}
	return "allow"
}

func verdictMeta(label string) (icon string, color lipgloss.Color) {
	switch label {
	case "allow":
		return "✅", lipgloss.Color("10")
	case "deny":
		return "\U0001f534", lipgloss.Color("9")
	case "failed":
		return "\U0001f7e1", lipgloss.Color("11")
	default:
		return "•", lipgloss.Color("7")
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}

func compactPath(path string, width int) string {
	path = strings.TrimSpace(path)
	if width <= 0 || path == "" {
		return ""
	}
	if len([]rune(path)) <= width {
		return path
	}

	base := filepath.Base(path)
	if len([]rune(base))+3 <= width {
		return "..." + string(filepath.Separator) + base
	}

	return truncateRunes(path, width)
}

// relativeTime formats the elapsed time as a human-readable string.
func relativeTime(now, ts time.Time) string {
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm ago", h, m)
		}
		return fmt.Sprintf("%dh ago", h)
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatEventLine renders one feed row with relative timestamps.
func formatEventLine(event audit.Event, width int, now time.Time) string {
	label := verdictLabel(event)
	icon, _ := verdictMeta(label)
	rel := fmt.Sprintf("%-8s", relativeTime(now, event.Timestamp))
	opPart := truncateRunes(strings.TrimSpace(event.Op), 8)
	if opPart == "" {
		opPart = "-"
	}

	summary := requestSummary(event)
	if isPathOp(event.Op) {
		summary = compactPath(summary, min(maxSummaryWidth, max(20, width/2)))
	}
	if summary == "" {
		summary = "-"
	}
	summary = truncateRunes(summary, maxSummaryWidth)

	detail := event.Verdict.Reason
	if detail == "" && event.Outcome != nil && event.Outcome.Error != "" {
		detail = event.Outcome.Error
	}
	if detail == "" {
		detail = "-"
	}

	base := fmt.Sprintf("%s %s %-8s %q [%s]", icon, rel, opPart, summary, detail)
	return truncateRunes(base, width)
}

func isPathOp(op string) bool {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "read", "write", "scan", "delete", "create", "rename":
		return true
	}
	return false
}

func trimEvents(events []audit.Event) []audit.Event {
	if len(events) <= maxVisibleEvents {
		return events
	}
	trimmed := make([]audit.Event, maxVisibleEvents)
	copy(trimmed, events[:maxVisibleEvents])
	return trimmed
}
