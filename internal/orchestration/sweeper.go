package orchestration

import (
	"context"
	"time"

	"weld/internal/logger"
	"weld/pkg/logging"
	"weld/pkg/metrics"
)

// Sweeper fails batches that have sat in awaiting_inputs longer than
// the configured dwell time. Disabled when maxDwellTime is zero.
type Sweeper struct {
	orchestrator *Orchestrator
	store        Store
	maxDwellTime time.Duration
	interval     time.Duration
	logger       logger.Logger
}

func NewSweeper(orchestrator *Orchestrator, store Store, maxDwellTime, interval time.Duration, log logger.Logger) *Sweeper {
	return &Sweeper{
		orchestrator: orchestrator,
		store:        store,
		maxDwellTime: maxDwellTime,
		interval:     interval,
		logger:       log,
	}
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.maxDwellTime <= 0 {
		s.logger.Info("Dwell-time sweeper disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infow("Dwell-time sweeper started",
		"max_dwell_time", s.maxDwellTime,
		"interval", s.interval,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Errorw("Sweep failed",
					"error", err,
				)
			}
		}
	}
}

// SweepOnce fails every overdue awaiting_inputs instance.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-s.maxDwellTime)

	stale, err := s.store.ListStale(ctx, PhaseAwaitingInputs, cutoff)
	if err != nil {
		return err
	}

	for _, inst := range stale {
		instCtx := logging.WithBatchID(ctx, inst.BatchID)
		s.logger.WarnwCtx(instCtx, "Failing overdue batch",
			"batch_id", inst.BatchID,
			"last_updated_at", inst.LastUpdatedAt,
			"received", len(inst.ReceivedItems),
		)

		if err := s.orchestrator.Fail(instCtx, inst, "max dwell time exceeded"); err != nil {
			s.logger.ErrorwCtx(instCtx, "Failed to fail overdue batch",
				"batch_id", inst.BatchID,
				"error", err,
			)
			continue
		}
		metrics.BatchesSweptTotal.Inc()
	}

	return nil
}
