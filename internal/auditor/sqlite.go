package auditor

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/logger"
)

// SQLiteAuditor persists audit events to a single SQLite file.
// Each row carries a checksum so edits to history can be detected.
type SQLiteAuditor struct {
	db        *sql.DB
	mu        sync.Mutex
	log       logger.Logger
	retention time.Duration // 0 = keep forever
	writeErr  error
}

// SQLiteConfig configures the SQLite auditor.
type SQLiteConfig struct {
	Path      string
	Retention time.Duration // records older than this are pruned on open
	Log       logger.Logger
}

// AuditRecord is one stored audit row.
type AuditRecord struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Action     string    `json:"action"`
	Path       string    `json:"path,omitempty"`
	Scanner    string    `json:"scanner,omitempty"`
	Category   string    `json:"category,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Removed    bool      `json:"removed,omitempty"`
	BytesFreed int64     `json:"bytes_freed,omitempty"`
	Error      string    `json:"error,omitempty"`
	Fields     string    `json:"fields,omitempty"` // JSON-encoded event fields
	Checksum   string    `json:"checksum"`
}

// NewSQLite opens (or creates) the audit database at cfg.Path.
func NewSQLite(cfg SQLiteConfig) (*SQLiteAuditor, error) {
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	a := &SQLiteAuditor{db: db, log: cfg.Log, retention: cfg.Retention}
	if a.retention > 0 {
		n, err := a.Prune(context.Background(), a.retention)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("prune audit log: %w", err)
		}
		if n > 0 {
			a.log.Info("pruned audit records", logger.F("count", n), logger.F("older_than", a.retention.String()))
		}
	}
	return a, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		level TEXT NOT NULL,
		action TEXT NOT NULL,
		path TEXT,
		scanner TEXT,
		category TEXT,
		reason TEXT,
		removed INTEGER NOT NULL DEFAULT 0,
		bytes_freed INTEGER,
		error TEXT,
		fields TEXT,
		checksum TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
	CREATE INDEX IF NOT EXISTS idx_audit_scanner ON audit_log(scanner);

	CREATE TABLE IF NOT EXISTS audit_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	_, err := db.Exec(`
		INSERT OR IGNORE INTO audit_meta (key, value)
		VALUES ('created_at', ?)
	`, time.Now().UTC().Format(time.RFC3339))
	return err
}

func stringField(f map[string]any, key string) string {
	s, _ := f[key].(string)
	return s
}

// recordFromEvent flattens the event into its stored columns.
func recordFromEvent(evt core.AuditEvent) AuditRecord {
	r := AuditRecord{
		Timestamp: evt.Time,
		Level:     evt.Level,
		Action:    evt.Action,
		Path:      evt.Path,
		Scanner:   stringField(evt.Fields, "scanner"),
		Category:  stringField(evt.Fields, "category"),
		Reason:    stringField(evt.Fields, "reason"),
	}
	if v, ok := evt.Fields["removed"].(bool); ok {
		r.Removed = v
	}
	if v, ok := evt.Fields["bytes_freed"].(int64); ok {
		r.BytesFreed = v
	}
	if evt.Err != nil {
		r.Error = evt.Err.Error()
	}
	if len(evt.Fields) > 0 {
		if b, err := json.Marshal(evt.Fields); err == nil {
			r.Fields = string(b)
		}
	}
	r.Checksum = r.computeChecksum()
	return r
}

// computeChecksum hashes every stored column except the id.
func (r AuditRecord) computeChecksum() string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%t|%d|%s|%s",
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Level, r.Action, r.Path, r.Scanner, r.Category, r.Reason,
		r.Removed, r.BytesFreed, r.Error, r.Fields)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Record persists one event. Write failures are logged and kept for Err;
// they never reach the caller.
func (a *SQLiteAuditor) Record(ctx context.Context, evt core.AuditEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	r := recordFromEvent(evt)

	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, level, action, path, scanner, category, reason, removed, bytes_freed, error, fields, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Level, r.Action, r.Path, r.Scanner, r.Category, r.Reason,
		r.Removed, r.BytesFreed, r.Error, r.Fields, r.Checksum,
	)
	if err != nil {
		a.log.Error("audit write failed", logger.F("action", evt.Action), logger.F("error", err.Error()))
		if a.writeErr == nil {
			a.writeErr = err
		}
	}
}

// Err returns the first write error encountered, if any.
func (a *SQLiteAuditor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writeErr
}

// Close closes the database connection.
func (a *SQLiteAuditor) Close() error {
	return a.db.Close()
}

// QueryFilter narrows Query results. Zero values match everything.
type QueryFilter struct {
	Since   time.Time
	Until   time.Time
	Action  string // scan, cleanup, remove
	Level   string // info, warn
	Scanner string
	Path    string // partial match
	Limit   int
}

const selectColumns = `SELECT id, timestamp, level, action, path, scanner, category, reason, removed, bytes_freed, error, fields, checksum FROM audit_log`

// Query returns records matching filter, newest first.
func (a *SQLiteAuditor) Query(ctx context.Context, filter QueryFilter) ([]AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	query := selectColumns + ` WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.Level != "" {
		query += " AND level = ?"
		args = append(args, filter.Level)
	}
	if filter.Scanner != "" {
		query += " AND scanner = ?"
		args = append(args, filter.Scanner)
	}
	if filter.Path != "" {
		query += " AND path LIKE ?"
		args = append(args, "%"+filter.Path+"%")
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (AuditRecord, error) {
	var r AuditRecord
	var ts string
	var path, scanner, category, reason, errStr, fields sql.NullString
	var bytesFreed sql.NullInt64

	err := rows.Scan(&r.ID, &ts, &r.Level, &r.Action, &path, &scanner, &category, &reason,
		&r.Removed, &bytesFreed, &errStr, &fields, &r.Checksum)
	if err != nil {
		return r, fmt.Errorf("scan row: %w", err)
	}

	r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	r.Path = path.String
	r.Scanner = scanner.String
	r.Category = category.String
	r.Reason = reason.String
	r.BytesFreed = bytesFreed.Int64
	r.Error = errStr.String
	r.Fields = fields.String
	return r, nil
}

// VerifyIntegrity returns the ids of rows whose checksum no longer matches.
func (a *SQLiteAuditor) VerifyIntegrity(ctx context.Context) ([]int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query for integrity check: %w", err)
	}
	defer rows.Close()

	var tampered []int64
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if r.Checksum != r.computeChecksum() {
			tampered = append(tampered, r.ID)
		}
	}
	return tampered, rows.Err()
}

// AuditStats summarizes the audit log.
type AuditStats struct {
	TotalRecords    int64     `json:"total_records"`
	FirstRecord     time.Time `json:"first_record"`
	LastRecord      time.Time `json:"last_record"`
	Scans           int64     `json:"scans"`
	Cleanups        int64     `json:"cleanups"`
	ItemsRemoved    int64     `json:"items_removed"`
	RemoveFailures  int64     `json:"remove_failures"`
	TotalBytesFreed int64     `json:"total_bytes_freed"`
}

func (a *SQLiteAuditor) Stats(ctx context.Context) (*AuditStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := &AuditStats{}
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&stats.TotalRecords); err != nil {
		return nil, err
	}

	var firstTS, lastTS sql.NullString
	if err := a.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM audit_log").Scan(&firstTS, &lastTS); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if firstTS.Valid {
		stats.FirstRecord, _ = time.Parse(time.RFC3339Nano, firstTS.String)
	}
	if lastTS.Valid {
		stats.LastRecord, _ = time.Parse(time.RFC3339Nano, lastTS.String)
	}

	counts := []struct {
		dst   *int64
		query string
	}{
		{&stats.Scans, "SELECT COUNT(*) FROM audit_log WHERE action = 'scan'"},
		{&stats.Cleanups, "SELECT COUNT(*) FROM audit_log WHERE action = 'cleanup'"},
		{&stats.ItemsRemoved, "SELECT COUNT(*) FROM audit_log WHERE action = 'remove' AND removed = 1"},
		{&stats.RemoveFailures, "SELECT COUNT(*) FROM audit_log WHERE action = 'remove' AND removed = 0"},
		{&stats.TotalBytesFreed, "SELECT COALESCE(SUM(bytes_freed), 0) FROM audit_log WHERE action = 'remove' AND removed = 1"},
	}
	for _, c := range counts {
		if err := a.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// Prune removes records older than olderThan and reports how many went.
func (a *SQLiteAuditor) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	result, err := a.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Export renders records since the given time as indented JSON.
func (a *SQLiteAuditor) Export(ctx context.Context, since time.Time) ([]byte, error) {
	records, err := a.Query(ctx, QueryFilter{Since: since})
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(records, "", "  ")
}

var _ core.Auditor = (*SQLiteAuditor)(nil)
