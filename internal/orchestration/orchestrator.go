package orchestration

import (
	"context"

	"github.com/google/uuid"

	"weld/internal/broker"
	"weld/internal/logger"
	"weld/internal/normalize"
	"weld/pkg/errors"
	"weld/pkg/logging"
	"weld/pkg/metrics"
	"weld/pkg/models"
	"weld/pkg/tracing"
)

// Composer merges the arrived items into one combined record. One
// blocking call, succeeds or fails atomically.
type Composer interface {
	Compose(ctx context.Context, items map[string]string) (string, error)
}

// Persistor writes each element of the combined record as an
// independent insert. Partial failure surfaces as a single error.
type Persistor interface {
	PersistEach(ctx context.Context, batchID, combined string) error
}

// Orchestrator drives a batch through its phases. It is stateless:
// every decision is derived from the persisted instance, so re-running
// the same step after a crash yields the same next action.
type Orchestrator struct {
	store       Store
	journal     Journal
	composer    Composer
	persistor   Persistor
	producer    broker.Producer
	outputTopic string
	logger      logger.Logger
}

func NewOrchestrator(store Store, journal Journal, composer Composer, persistor Persistor, log logger.Logger) *Orchestrator {
	if journal == nil {
		journal = NopJournal{}
	}
	return &Orchestrator{
		store:     store,
		journal:   journal,
		composer:  composer,
		persistor: persistor,
		logger:    log,
	}
}

// SetEventPublisher wires the producer used for terminal-phase
// lifecycle events. Optional; without it events are simply not emitted.
func (o *Orchestrator) SetEventPublisher(producer broker.Producer, topic string) {
	o.producer = producer
	o.outputTopic = topic
}

// EnsureInstance returns the instance for a batch, creating it when
// absent. Creation is first-writer-wins: losing the race falls back to
// reading the winner's instance.
func (o *Orchestrator) EnsureInstance(ctx context.Context, batchID string) (*Instance, error) {
	inst, err := o.store.Get(ctx, batchID)
	if err == nil {
		return inst, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	inst = NewInstance(batchID)
	if err := o.store.Create(ctx, inst); err != nil {
		if errors.IsConflict(err) {
			return o.store.Get(ctx, batchID)
		}
		return nil, err
	}

	metrics.BatchesActive.Inc()
	o.logger.InfowCtx(ctx, "Created orchestration instance",
		"batch_id", batchID,
	)
	return inst, nil
}

// Apply records one item arrival against an instance and advances the
// batch when it becomes complete. Duplicate deliveries, unexpected item
// names and events for terminal instances are absorbed without effect.
func (o *Orchestrator) Apply(ctx context.Context, inst *Instance, arrival normalize.ItemArrival) error {
	ctx, span := tracing.GetTracer("orchestrator").Start(ctx, "orchestration.apply")
	defer span.End()

	if inst.Phase.IsTerminal() {
		metrics.NotificationsTotal.WithLabelValues("duplicate_terminal").Inc()
		o.logger.InfowCtx(ctx, "Ignoring event for terminal batch",
			"batch_id", inst.BatchID,
			"phase", inst.Phase,
			"item", arrival.ItemName,
		)
		return nil
	}

	if inst.Phase != PhaseAwaitingInputs {
		// Mid-flight instance: the event is bookkeeping only and must
		// not re-trigger composition or persistence.
		o.logger.InfowCtx(ctx, "Ignoring event for in-flight batch",
			"batch_id", inst.BatchID,
			"phase", inst.Phase,
			"item", arrival.ItemName,
		)
		return nil
	}

	if !inst.Expects(arrival.ItemName) {
		metrics.NotificationsTotal.WithLabelValues("unexpected_item").Inc()
		o.logger.WarnwCtx(ctx, "Dropping unexpected item",
			"batch_id", inst.BatchID,
			"item", arrival.ItemName,
		)
		return nil
	}

	if existing, ok := inst.ReceivedItems[arrival.ItemName]; ok && existing == arrival.Location {
		// Absorbed without a version bump, but completion is still
		// evaluated below: a redelivery may be the first event seen
		// after a crash that hit between the final record commit and
		// the composing transition.
		o.logger.DebugwCtx(ctx, "Duplicate item delivery absorbed",
			"batch_id", inst.BatchID,
			"item", arrival.ItemName,
		)
	} else {
		// Last write wins per slot; re-delivery with a new location
		// overwrites, which is still idempotent in effect.
		inst.ReceivedItems[arrival.ItemName] = arrival.Location
		if err := o.store.Update(ctx, inst); err != nil {
			return err
		}

		metrics.ItemsRecordedTotal.WithLabelValues(arrival.ItemName).Inc()
		o.logger.InfowCtx(ctx, "Recorded item",
			"batch_id", inst.BatchID,
			"item", arrival.ItemName,
			"received", len(inst.ReceivedItems),
			"expected", len(inst.ExpectedItems),
		)
	}

	if !inst.Complete() {
		return nil
	}

	if err := o.transition(ctx, inst, PhaseComposing, ""); err != nil {
		return err
	}

	return o.runPipeline(ctx, inst)
}

// Resume re-drives instances a previous process left mid-phase. The
// composing phase re-runs the composer call (accepted at-least-once);
// the persisting phase re-runs persistence with the stored result.
// Awaiting instances whose item set is already complete are advanced
// too: the previous process may have died after the final record
// commit but before the composing transition.
func (o *Orchestrator) Resume(ctx context.Context) error {
	waiting, err := o.store.ListByPhase(ctx, PhaseAwaitingInputs)
	if err != nil {
		return err
	}
	for _, inst := range waiting {
		if !inst.Complete() {
			continue
		}
		instCtx := logging.WithBatchID(ctx, inst.BatchID)
		o.logger.InfowCtx(instCtx, "Resuming batch",
			"batch_id", inst.BatchID,
			"phase", inst.Phase,
		)
		if err := o.transition(instCtx, inst, PhaseComposing, ""); err != nil {
			o.logger.ErrorwCtx(instCtx, "Failed to resume batch",
				"batch_id", inst.BatchID,
				"error", err,
			)
			continue
		}
		if err := o.runPipeline(instCtx, inst); err != nil {
			o.logger.ErrorwCtx(instCtx, "Failed to resume batch",
				"batch_id", inst.BatchID,
				"error", err,
			)
		}
	}

	for _, phase := range []Phase{PhaseComposing, PhasePersisting} {
		instances, err := o.store.ListByPhase(ctx, phase)
		if err != nil {
			return err
		}

		for _, inst := range instances {
			instCtx := logging.WithBatchID(ctx, inst.BatchID)
			o.logger.InfowCtx(instCtx, "Resuming batch",
				"batch_id", inst.BatchID,
				"phase", inst.Phase,
			)
			if err := o.runPipeline(instCtx, inst); err != nil {
				o.logger.ErrorwCtx(instCtx, "Failed to resume batch",
					"batch_id", inst.BatchID,
					"error", err,
				)
			}
		}
	}
	return nil
}

// Fail moves a non-terminal instance to Failed and publishes the
// failure event.
func (o *Orchestrator) Fail(ctx context.Context, inst *Instance, reason string) error {
	if inst.Phase.IsTerminal() {
		return nil
	}
	if err := o.transition(ctx, inst, PhaseFailed, reason); err != nil {
		return err
	}
	metrics.BatchesActive.Dec()
	o.publishEvent(ctx, models.TypeBatchFailed, inst.BatchID, reason)
	return nil
}

// runPipeline executes the side effects owed by the instance's current
// phase. Each side effect fires on phase entry only: the phase is
// committed before the external call, so a crash mid-call re-runs the
// call on resume rather than skipping it.
func (o *Orchestrator) runPipeline(ctx context.Context, inst *Instance) error {
	if inst.Phase == PhaseComposing {
		combined, err := o.composer.Compose(ctx, inst.ReceivedItems)
		if err != nil {
			o.logger.ErrorwCtx(ctx, "Composer call failed",
				"batch_id", inst.BatchID,
				"error", err,
			)
			return o.Fail(ctx, inst, "composer failure: "+err.Error())
		}

		inst.CombinedResult = combined
		if err := o.transition(ctx, inst, PhasePersisting, ""); err != nil {
			return err
		}
	}

	if inst.Phase == PhasePersisting {
		if err := o.persistor.PersistEach(ctx, inst.BatchID, inst.CombinedResult); err != nil {
			o.logger.ErrorwCtx(ctx, "Persistor call failed",
				"batch_id", inst.BatchID,
				"error", err,
			)
			return o.Fail(ctx, inst, "persistor failure: "+err.Error())
		}

		if err := o.transition(ctx, inst, PhaseCompleted, ""); err != nil {
			return err
		}
		metrics.BatchesActive.Dec()
		o.publishEvent(ctx, models.TypeBatchCompleted, inst.BatchID, "")
	}

	return nil
}

func (o *Orchestrator) transition(ctx context.Context, inst *Instance, to Phase, reason string) error {
	from := inst.Phase
	inst.Phase = to
	if reason != "" {
		inst.FailureReason = reason
	}

	if err := o.store.Update(ctx, inst); err != nil {
		inst.Phase = from
		return err
	}

	metrics.IncPhaseTransition(string(from), string(to))
	o.logger.InfowCtx(ctx, "Batch phase transition",
		"batch_id", inst.BatchID,
		"from", from,
		"to", to,
	)

	if err := o.journal.RecordTransition(ctx, TransitionEntry{
		BatchID:   inst.BatchID,
		FromPhase: from,
		ToPhase:   to,
		Reason:    reason,
	}); err != nil {
		o.logger.WarnwCtx(ctx, "Failed to journal transition",
			"batch_id", inst.BatchID,
			"error", err,
		)
	}

	return nil
}

func (o *Orchestrator) publishEvent(ctx context.Context, eventType, batchID, reason string) {
	if o.producer == nil || o.outputTopic == "" {
		return
	}

	event := models.NewBatchEvent(uuid.New().String(), eventType, batchID, reason)
	event.Metadata.TraceID = logging.GetTraceID(ctx)

	if err := o.producer.Publish(ctx, o.outputTopic, event); err != nil {
		o.logger.ErrorwCtx(ctx, "Failed to publish batch event",
			"batch_id", batchID,
			"type", eventType,
			"error", err,
		)
	}
}
