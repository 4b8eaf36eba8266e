package orchestration

import (
	"context"
	"time"

	"weld/internal/gate"
	"weld/internal/lock"
	"weld/internal/logger"
	"weld/internal/normalize"
	"weld/pkg/logging"
	"weld/pkg/metrics"
	"weld/pkg/models"
	"weld/pkg/tracing"
)

// Dispatcher is the process-wide entry point: it normalizes a raw
// notification, gates it, and routes it to the right orchestration
// instance under the per-batch lock.
type Dispatcher struct {
	orchestrator *Orchestrator
	gate         *gate.Gate
	locks        *lock.Manager
	logger       logger.Logger
}

func NewDispatcher(orchestrator *Orchestrator, g *gate.Gate, locks *lock.Manager, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		orchestrator: orchestrator,
		gate:         g,
		locks:        locks,
		logger:       log,
	}
}

// HandleNotification processes one raw notification end to end. It is
// the broker-facing entry point; the webhook goes through Dispatch to
// get the extraction result back.
func (d *Dispatcher) HandleNotification(ctx context.Context, msg models.Notification) error {
	_, err := d.Dispatch(ctx, msg)
	return err
}

// Dispatch processes one raw notification and reports what was
// extracted from it. Malformed and gated notifications are absorbed;
// store unavailability and lock contention propagate so the delivery
// layer can retry.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.Notification) (models.DispatchInfo, error) {
	ctx, span := tracing.GetTracer("dispatcher").Start(ctx, "dispatcher.handle_notification")
	defer span.End()

	start := time.Now()
	outcome := "dispatched"
	defer func() {
		metrics.NotificationsTotal.WithLabelValues(outcome).Inc()
		metrics.ObserveDispatchDuration(time.Since(start), outcome)
	}()

	if d.gate != nil {
		admitted, rules, err := d.gate.Admit(ctx, msg)
		if err != nil {
			outcome = "error"
			return models.DispatchInfo{}, err
		}
		if !admitted {
			outcome = "gated"
			d.logger.InfowCtx(ctx, "Notification rejected by gate",
				"notification_id", msg.ID,
			)
			return models.DispatchInfo{}, nil
		}
		gate.Stamp(&msg, rules)
	}

	arrival := normalize.Normalize(msg)
	info := models.DispatchInfo{
		BatchID:    arrival.BatchID,
		ItemName:   arrival.ItemName,
		Valid:      arrival.Valid,
		ReceivedAt: arrival.ReceivedAt,
	}
	msg.Metadata.Dispatch = &info

	if !arrival.Valid {
		// Unparseable notifications never create instances and never
		// fail the caller.
		outcome = "malformed"
		d.logger.WarnwCtx(ctx, "Dropping malformed notification",
			"notification_id", msg.ID,
			"url", arrival.Location,
		)
		return info, nil
	}

	ctx = logging.WithBatchID(ctx, arrival.BatchID)

	if d.locks != nil {
		batchLock, err := d.locks.Acquire(ctx, arrival.BatchID)
		if err != nil {
			outcome = "error"
			return info, err
		}
		defer func() {
			if releaseErr := batchLock.Release(ctx); releaseErr != nil {
				d.logger.WarnwCtx(ctx, "Failed to release batch lock",
					"batch_id", arrival.BatchID,
					"error", releaseErr,
				)
			}
		}()
	}

	inst, err := d.orchestrator.EnsureInstance(ctx, arrival.BatchID)
	if err != nil {
		outcome = "error"
		return info, err
	}

	if err := d.orchestrator.Apply(ctx, inst, arrival); err != nil {
		outcome = "error"
		return info, err
	}
	return info, nil
}
