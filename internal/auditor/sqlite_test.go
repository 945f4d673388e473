package auditor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
)

func newTestSQLite(t *testing.T) *SQLiteAuditor {
	t.Helper()
	aud, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("failed to create auditor: %v", err)
	}
	t.Cleanup(func() { aud.Close() })
	return aud
}

func removeEvent(path string, removed bool, size int64, reason core.RemovalReason) core.AuditEvent {
	c := core.Candidate{Path: path, Size: size, Category: core.CategoryTempFiles, Safety: core.SafetySafe}
	out := core.RemovalOutcome{Path: path, Removed: removed, Reason: reason}
	if removed {
		out.BytesFreed = size
	} else {
		out.Err = errors.New("busy")
	}
	return core.NewRemoveAuditEvent("system_temp", c, out)
}

func TestSQLiteAuditor_RecordFlattensRemoveEvent(t *testing.T) {
	aud := newTestSQLite(t)

	aud.Record(context.Background(), removeEvent("/tmp/a.tmp", true, 1024, core.ReasonRemoved))

	records, err := aud.Query(context.Background(), QueryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Action != core.AuditActionRemove || r.Path != "/tmp/a.tmp" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Scanner != "system_temp" || r.Category != "temp_files" || r.Reason != "removed" {
		t.Errorf("expected scanner/category/reason columns, got %+v", r)
	}
	if !r.Removed || r.BytesFreed != 1024 {
		t.Errorf("expected removed with 1024 bytes, got removed=%v bytes=%d", r.Removed, r.BytesFreed)
	}
	if r.Checksum == "" {
		t.Error("expected checksum to be set")
	}
	if err := aud.Err(); err != nil {
		t.Errorf("unexpected write error: %v", err)
	}
}

func TestSQLiteAuditor_QueryFilters(t *testing.T) {
	aud := newTestSQLite(t)
	now := time.Now()

	scan := core.NewScanAuditEvent(core.ScanReport{ID: "s1", Platform: core.PlatformLinux})
	scan.Time = now.Add(-2 * time.Hour)
	aud.Record(context.Background(), scan)

	ok := removeEvent("/tmp/b.txt", true, 10, core.ReasonRemoved)
	ok.Time = now.Add(-time.Hour)
	aud.Record(context.Background(), ok)

	failed := removeEvent("/var/tmp/c.txt", false, 20, core.ReasonLocked)
	failed.Time = now
	aud.Record(context.Background(), failed)

	tests := []struct {
		name   string
		filter QueryFilter
		want   int
	}{
		{"all", QueryFilter{}, 3},
		{"by action", QueryFilter{Action: core.AuditActionRemove}, 2},
		{"by level", QueryFilter{Level: "warn"}, 1},
		{"by scanner", QueryFilter{Scanner: "system_temp"}, 2},
		{"by path fragment", QueryFilter{Path: "var/tmp"}, 1},
		{"since", QueryFilter{Since: now.Add(-90 * time.Minute)}, 2},
		{"limit", QueryFilter{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := aud.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("query failed: %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(records))
			}
		})
	}

	records, _ := aud.Query(context.Background(), QueryFilter{})
	if records[0].Path != "/var/tmp/c.txt" {
		t.Errorf("expected newest record first, got %q", records[0].Path)
	}
	if records[0].Error != "busy" {
		t.Errorf("expected error column, got %q", records[0].Error)
	}
}

func TestSQLiteAuditor_VerifyIntegrity(t *testing.T) {
	aud := newTestSQLite(t)
	aud.Record(context.Background(), removeEvent("/tmp/test.txt", true, 1, core.ReasonRemoved))

	tampered, err := aud.VerifyIntegrity(context.Background())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(tampered) != 0 {
		t.Errorf("expected no tampered records, got %d", len(tampered))
	}

	if _, err := aud.db.Exec("UPDATE audit_log SET bytes_freed = 999999 WHERE id = 1"); err != nil {
		t.Fatalf("failed to tamper: %v", err)
	}

	tampered, err = aud.VerifyIntegrity(context.Background())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(tampered) != 1 || tampered[0] != 1 {
		t.Errorf("expected record 1 to be flagged, got %v", tampered)
	}
}

func TestSQLiteAuditor_Stats(t *testing.T) {
	aud := newTestSQLite(t)
	ctx := context.Background()

	aud.Record(ctx, core.NewScanAuditEvent(core.ScanReport{ID: "s1"}))
	aud.Record(ctx, removeEvent("/tmp/a", true, 1024, core.ReasonRemoved))
	aud.Record(ctx, removeEvent("/tmp/b", true, 2048, core.ReasonRemoved))
	aud.Record(ctx, removeEvent("/tmp/c", false, 4096, core.ReasonLocked))
	aud.Record(ctx, core.NewCleanupAuditEvent(core.CleanupReport{ID: "c1", TotalRemoved: 2, TotalFreed: 3072}))

	stats, err := aud.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	if stats.TotalRecords != 5 {
		t.Errorf("expected 5 total records, got %d", stats.TotalRecords)
	}
	if stats.Scans != 1 || stats.Cleanups != 1 {
		t.Errorf("expected 1 scan and 1 cleanup, got %d and %d", stats.Scans, stats.Cleanups)
	}
	if stats.ItemsRemoved != 2 || stats.RemoveFailures != 1 {
		t.Errorf("expected 2 removed and 1 failure, got %d and %d", stats.ItemsRemoved, stats.RemoveFailures)
	}
	if stats.TotalBytesFreed != 3072 {
		t.Errorf("expected 3072 bytes freed, got %d", stats.TotalBytesFreed)
	}
	if stats.FirstRecord.IsZero() || stats.LastRecord.IsZero() {
		t.Error("expected record time range")
	}
}

func TestSQLiteAuditor_Prune(t *testing.T) {
	aud := newTestSQLite(t)

	aud.Record(context.Background(), core.AuditEvent{Time: time.Now().Add(-48 * time.Hour), Level: "info", Action: core.AuditActionScan})
	aud.Record(context.Background(), core.AuditEvent{Time: time.Now(), Level: "info", Action: core.AuditActionScan})

	deleted, err := aud.Prune(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	records, _ := aud.Query(context.Background(), QueryFilter{})
	if len(records) != 1 {
		t.Errorf("expected 1 remaining record, got %d", len(records))
	}
}

func TestSQLiteAuditor_RetentionAppliedOnOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	aud1, err := NewSQLite(SQLiteConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to create auditor: %v", err)
	}
	aud1.Record(context.Background(), core.AuditEvent{Time: time.Now().Add(-10 * 24 * time.Hour), Level: "info", Action: core.AuditActionScan})
	aud1.Record(context.Background(), core.AuditEvent{Time: time.Now(), Level: "info", Action: core.AuditActionScan})
	aud1.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file should exist: %v", err)
	}

	aud2, err := NewSQLite(SQLiteConfig{Path: dbPath, Retention: 7 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("failed to reopen auditor: %v", err)
	}
	defer aud2.Close()

	records, err := aud2.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected the old record to be pruned on open, got %d records", len(records))
	}
}

func TestSQLiteAuditor_Export(t *testing.T) {
	aud := newTestSQLite(t)
	aud.Record(context.Background(), removeEvent("/tmp/a", true, 1, core.ReasonRemoved))

	data, err := aud.Export(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if len(data) == 0 || data[0] != '[' {
		t.Errorf("expected JSON array, got %q", data)
	}
}
