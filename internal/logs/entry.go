package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entry is one decoded JSON log record.
type Entry struct {
	Time      time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	JobID     string            `json:"job_id,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	EventType string            `json:"event_type,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Raw       string            `json:"-"`
}

var knownKeys = map[string]struct{}{
	"ts": {}, "level": {}, "msg": {}, "component": {}, "job_id": {},
	"stage": {}, "run_id": {}, "event_type": {}, "source": {},
}

// ParseEntry decodes a JSON log line. Lines that are not JSON objects are
// returned as info entries carrying only Raw and Message.
func ParseEntry(line string) Entry {
	entry := Entry{Raw: line}
	trimmed := strings.TrimSpace(line)
	var record map[string]any
	if !strings.HasPrefix(trimmed, "{") || json.Unmarshal([]byte(trimmed), &record) != nil {
		entry.Level = "info"
		entry.Message = trimmed
		return entry
	}

	entry.Level = strings.ToLower(stringField(record, "level"))
	entry.Message = stringField(record, "msg")
	entry.Component = stringField(record, "component")
	entry.JobID = stringField(record, "job_id")
	entry.Stage = stringField(record, "stage")
	entry.RunID = stringField(record, "run_id")
	entry.EventType = stringField(record, "event_type")
	if ts := stringField(record, "ts"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Time = parsed
		}
	}
	for key, value := range record {
		if _, ok := knownKeys[key]; ok {
			continue
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]string)
		}
		entry.Fields[key] = fmt.Sprint(value)
	}
	return entry
}

func stringField(record map[string]any, key string) string {
	value, ok := record[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	JobID    string
	RunID    string
	Stage    string
	MinLevel string
}

// Match reports whether e passes every set criterion.
func (f Filter) Match(e Entry) bool {
	if f.JobID != "" && e.JobID != f.JobID {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.Stage != "" && !strings.EqualFold(e.Stage, f.Stage) {
		return false
	}
	if f.MinLevel != "" && levelRank(e.Level) < levelRank(f.MinLevel) {
		return false
	}
	return true
}

// ValidLevel reports whether level names a known severity.
func ValidLevel(level string) bool {
	return levelRank(level) >= 0 && strings.TrimSpace(level) != ""
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "info", "":
		return 1
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return -1
	}
}

// Format renders e as a single human-readable line.
func (e Entry) Format() string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	if e.JobID != "" {
		fmt.Fprintf(&b, "[%s", e.JobID)
		if e.Stage != "" {
			fmt.Fprintf(&b, "/%s", e.Stage)
		}
		b.WriteString("] ")
	} else if e.Component != "" {
		fmt.Fprintf(&b, "[%s] ", e.Component)
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, e.Fields[key])
	}
	return b.String()
}
