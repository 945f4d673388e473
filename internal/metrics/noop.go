package metrics

import (
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
)

// Noop is a no-op implementation of core.Metrics.
// Use this when metrics collection is disabled.
type Noop struct{}

// NewNoop creates a new no-op metrics collector.
func NewNoop() *Noop {
	return &Noop{}
}

// Scanning metrics
func (Noop) IncCandidatesDiscovered(string)            {}
func (Noop) IncPolicyDecision(string, bool)            {}
func (Noop) ObserveScanDuration(string, time.Duration) {}
func (Noop) IncScannerErrors(string)                   {}
func (Noop) SetBytesReclaimable(int64)                 {}
func (Noop) SetItemsReclaimable(int)                   {}

// Cleanup metrics
func (Noop) IncItemsRemoved(string)                   {}
func (Noop) AddBytesFreed(int64)                      {}
func (Noop) IncRemoveErrors(string)                   {}
func (Noop) ObserveHandleSnapshot(time.Duration, int) {}

// Ensure Noop implements core.Metrics
var _ core.Metrics = (*Noop)(nil)
