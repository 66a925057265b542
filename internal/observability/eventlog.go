// Package observability holds the append-only audit log that lifecycle and
// integration operations write to. The log is JSONL on disk so it can be
// tailed, grepped, and replayed without tooling.
package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry is one audit record: an operation that completed.
type Entry struct {
	Time    time.Time      `json:"time"`
	Type    string         `json:"type"` // e.g. "task.started", "pr.integrated"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// Filter selects audit entries on read.
type Filter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Task  string
}

// AuditLog is an append-only JSONL audit trail.
type AuditLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// OpenAuditLog opens (creating if needed) the audit log at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &AuditLog{path: path, file: f}, nil
}

// Write appends one JSON-encoded entry followed by a newline.
func (l *AuditLog) Write(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshalling audit entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Log records a completed operation. Audit writes are best-effort: a failed
// write must never fail the operation it describes.
func (l *AuditLog) Log(eventType, message string, data map[string]any) {
	_ = l.Write(Entry{
		Time:    time.Now().UTC(),
		Type:    eventType,
		Message: message,
		Data:    data,
	})
}

// Read scans the log and returns entries matching the filter. Malformed
// lines are skipped so a torn write cannot poison the whole log.
func (l *AuditLog) Read(filter Filter) ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if matchesFilter(entry, filter) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}
	return entries, nil
}

// Close closes the underlying log file.
func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing audit log: %w", err)
	}
	return nil
}

func matchesFilter(entry Entry, filter Filter) bool {
	if filter.Since != nil && entry.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && entry.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && entry.Type != filter.Type {
		return false
	}
	if filter.Task != "" {
		task, _ := entry.Data["task"].(string)
		id, _ := entry.Data["id"].(string)
		if task != filter.Task && id != filter.Task {
			return false
		}
	}
	return true
}
