package auditor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
)

// JSONLAuditor appends one JSON object per line to a file.
// Writes are buffered and flushed after every event.
type JSONLAuditor struct {
	mu       sync.Mutex
	path     string
	f        *os.File
	w        *bufio.Writer
	writeErr error // first write error; auditing never blocks cleanup
}

// jsonlRecord is the on-disk shape of one event.
type jsonlRecord struct {
	Time   time.Time      `json:"time"`
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Path   string         `json:"path,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Err    string         `json:"err,omitempty"`
}

// NewJSONL opens path for appending, creating it and its parent
// directory if needed.
func NewJSONL(path string) (*JSONLAuditor, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &JSONLAuditor{path: path, f: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (a *JSONLAuditor) Path() string { return a.path }

func (a *JSONLAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	flushErr := a.w.Flush()
	err := a.f.Close()
	a.f = nil
	if err == nil {
		err = flushErr
	}
	return err
}

// Err returns the first write error encountered, if any.
func (a *JSONLAuditor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writeErr
}

func (a *JSONLAuditor) Record(_ context.Context, evt core.AuditEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	rec := jsonlRecord{
		Time:   evt.Time,
		Level:  evt.Level,
		Action: evt.Action,
		Path:   evt.Path,
		Fields: evt.Fields,
	}
	if evt.Err != nil {
		rec.Err = evt.Err.Error()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return
	}

	b, err := json.Marshal(rec)
	if err != nil {
		a.fail(err)
		return
	}
	if _, err := a.w.Write(append(b, '\n')); err != nil {
		a.fail(err)
		return
	}
	if err := a.w.Flush(); err != nil {
		a.fail(err)
	}
}

func (a *JSONLAuditor) fail(err error) {
	if a.writeErr == nil {
		a.writeErr = err
	}
}

var _ core.Auditor = (*JSONLAuditor)(nil)
