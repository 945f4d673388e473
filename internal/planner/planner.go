package planner

import (
	"context"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/metrics"
)

// Collector drains one source's candidate stream through a policy and keeps
// the admitted candidates in emission order.
type Collector struct {
	log     logger.Logger
	metrics core.Metrics
}

// NewCollector creates a collector with no-op logging and metrics.
func NewCollector() *Collector {
	return NewCollectorWithMetrics(nil, nil)
}

// NewCollectorWithLogger creates a collector with the given logger.
func NewCollectorWithLogger(log logger.Logger) *Collector {
	return NewCollectorWithMetrics(log, nil)
}

// NewCollectorWithMetrics creates a collector with logger and metrics.
func NewCollectorWithMetrics(log logger.Logger, m core.Metrics) *Collector {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Collector{log: log, metrics: m}
}

// Collect consumes in and errc until both are closed or ctx is done.
// Admitted candidates are tagged with the scanner name.
//
// The returned error is the first discovery error, or ctx.Err() on
// cancellation; in both cases the items admitted so far are returned too.
func (p *Collector) Collect(
	ctx context.Context,
	scanner string,
	in <-chan core.Candidate,
	errc <-chan error,
	pol core.Policy,
	env core.EnvSnapshot,
) ([]core.Candidate, error) {
	p.log.Debug("collecting candidates", logger.F("scanner", scanner))

	var (
		items    []core.Candidate
		firstErr error
		seen     int
	)

	for in != nil || errc != nil {
		select {
		case <-ctx.Done():
			p.log.Debug("collection canceled", logger.F("scanner", scanner), logger.F("admitted", len(items)))
			return items, ctx.Err()

		case err, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}

		case cand, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			seen++
			p.metrics.IncCandidatesDiscovered(scanner)

			if err := cand.Validate(); err != nil {
				p.log.Warn("dropping malformed candidate",
					logger.F("scanner", scanner),
					logger.F("path", cand.Path),
					logger.F("error", err.Error()),
				)
				p.metrics.IncPolicyDecision("invalid", false)
				continue
			}

			dec := pol.Evaluate(ctx, cand, env)
			p.metrics.IncPolicyDecision(core.ReasonKey(dec.Reason), dec.Allow)
			if !dec.Allow {
				continue
			}
			items = append(items, cand.WithMetadata(core.MetaScanner, scanner))
		}
	}

	p.log.Info("candidates collected",
		logger.F("scanner", scanner),
		logger.F("seen", seen),
		logger.F("admitted", len(items)),
	)
	return items, firstErr
}
