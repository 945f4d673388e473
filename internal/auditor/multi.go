package auditor

import (
	"context"
	"errors"
	"io"

	"github.com/ChrisB0-2/purge/internal/core"
)

// Multi fans audit events out to several auditors.
type Multi struct {
	auditors []core.Auditor
}

// NewMulti creates an auditor that writes to every non-nil backend.
func NewMulti(auditors ...core.Auditor) *Multi {
	m := &Multi{}
	for _, a := range auditors {
		if a != nil {
			m.auditors = append(m.auditors, a)
		}
	}
	return m
}

// Record writes the event to all configured auditors, in order.
func (m *Multi) Record(ctx context.Context, evt core.AuditEvent) {
	for _, a := range m.auditors {
		a.Record(ctx, evt)
	}
}

// Err joins the first write error of every backend that tracks one.
func (m *Multi) Err() error {
	var errs []error
	for _, a := range m.auditors {
		if e, ok := a.(interface{ Err() error }); ok {
			if err := e.Err(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every backend that can be closed.
func (m *Multi) Close() error {
	var errs []error
	for _, a := range m.auditors {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

var _ core.Auditor = (*Multi)(nil)
