package auditor

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/logger"
)

// Backend names accepted by Open.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Sink is an auditor that owns a resource.
type Sink interface {
	core.Auditor
	io.Closer
}

// Open creates the auditor for backend at path. An empty backend means jsonl.
// retention only applies to sqlite.
func Open(backend, path string, retention time.Duration, log logger.Logger) (Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit path is required")
	}
	switch strings.ToLower(backend) {
	case "", BackendJSONL:
		return NewJSONL(path)
	case BackendSQLite:
		return NewSQLite(SQLiteConfig{Path: path, Retention: retention, Log: log})
	default:
		return nil, fmt.Errorf("unknown audit backend %q", backend)
	}
}
