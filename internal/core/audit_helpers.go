package core

import "time"

// Canonical audit actions
const (
	AuditActionScan    = "scan"
	AuditActionCleanup = "cleanup"
	AuditActionRemove  = "remove"
)

// NewScanAuditEvent standardizes scan-time audit shape.
func NewScanAuditEvent(r ScanReport) AuditEvent {
	level := "info"
	if len(r.Errors) > 0 {
		level = "warn"
	}
	return AuditEvent{
		Time:   time.Now(),
		Level:  level,
		Action: AuditActionScan,
		Fields: map[string]any{
			"scan_id":     r.ID,
			"platform":    string(r.Platform),
			"total_found": r.TotalFound,
			"total_size":  r.TotalSize,
			"errors":      len(r.Errors),
			"duration_ms": time.Duration(r.Duration).Milliseconds(),
			"canceled":    r.Canceled,
		},
	}
}

// NewCleanupAuditEvent standardizes cleanup-time audit shape.
func NewCleanupAuditEvent(r CleanupReport) AuditEvent {
	level := "info"
	if len(r.Failed) > 0 || len(r.Errors) > 0 {
		level = "warn"
	}
	return AuditEvent{
		Time:   time.Now(),
		Level:  level,
		Action: AuditActionCleanup,
		Fields: map[string]any{
			"cleanup_id":    r.ID,
			"dry_run":       r.DryRun,
			"total_removed": r.TotalRemoved,
			"bytes_freed":   r.TotalFreed,
			"failed":        len(r.Failed),
			"errors":        len(r.Errors),
			"duration_ms":   time.Duration(r.Duration).Milliseconds(),
		},
	}
}

// NewRemoveAuditEvent records the outcome of one removal attempt.
func NewRemoveAuditEvent(scanner string, c Candidate, out RemovalOutcome) AuditEvent {
	level := "info"
	if !out.Removed {
		level = "warn"
	}
	return AuditEvent{
		Time:   time.Now(),
		Level:  level,
		Action: AuditActionRemove,
		Path:   c.Path,
		Fields: map[string]any{
			"scanner":      scanner,
			"category":     string(c.Category),
			"safety_level": string(c.Safety),
			"size_bytes":   c.Size,
			"removed":      out.Removed,
			"reason":       reasonKey(string(out.Reason)),
			"bytes_freed":  out.BytesFreed,
		},
		Err: out.Err,
	}
}

// reasonKey collapses reasons like "excluded:*.keep" -> "excluded"
func reasonKey(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i]
		}
	}
	return s
}

// ReasonKey exposes reasonKey for metric labels, which must stay low-cardinality.
func ReasonKey(s string) string {
	return reasonKey(s)
}
