package orchestration

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"weld/internal/constants"
	"weld/pkg/errors"
	"weld/pkg/metrics"
)

// MongoStore persists instances in the orchestrations collection. The
// unique index on batch_id (created by pkg/migrations) makes Create
// first-writer-wins; Update filters on batch_id+version for CAS.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(constants.OrchestrationCollection),
	}
}

func (s *MongoStore) Create(ctx context.Context, inst *Instance) error {
	start := time.Now()

	_, err := s.collection.InsertOne(ctx, inst)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			metrics.ObserveStoreOperation("create", "conflict", time.Since(start))
			return errors.ErrConflict.WithDetail("batch_id", inst.BatchID)
		}
		metrics.ObserveStoreOperation("create", "error", time.Since(start))
		return errors.ErrServiceUnavailable.WithCause(err).WithDetail("operation", "create")
	}

	metrics.ObserveStoreOperation("create", "ok", time.Since(start))
	return nil
}

func (s *MongoStore) Get(ctx context.Context, batchID string) (*Instance, error) {
	start := time.Now()

	var inst Instance
	err := s.collection.FindOne(ctx, bson.M{"batch_id": batchID}).Decode(&inst)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			metrics.ObserveStoreOperation("get", "not_found", time.Since(start))
			return nil, errors.ErrNotFound.WithDetail("batch_id", batchID)
		}
		metrics.ObserveStoreOperation("get", "error", time.Since(start))
		return nil, errors.ErrServiceUnavailable.WithCause(err).WithDetail("operation", "get")
	}

	metrics.ObserveStoreOperation("get", "ok", time.Since(start))
	return &inst, nil
}

func (s *MongoStore) Update(ctx context.Context, inst *Instance) error {
	start := time.Now()

	now := time.Now()
	filter := bson.M{
		"batch_id": inst.BatchID,
		"version":  inst.Version,
	}
	update := bson.M{
		"$set": bson.M{
			"phase":           inst.Phase,
			"received_items":  inst.ReceivedItems,
			"expected_items":  inst.ExpectedItems,
			"combined_result": inst.CombinedResult,
			"failure_reason":  inst.FailureReason,
			"version":         inst.Version + 1,
			"last_updated_at": now,
		},
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		metrics.ObserveStoreOperation("update", "error", time.Since(start))
		return errors.ErrServiceUnavailable.WithCause(err).WithDetail("operation", "update")
	}
	if result.MatchedCount == 0 {
		metrics.ObserveStoreOperation("update", "conflict", time.Since(start))
		return errors.ErrConflict.
			WithDetail("batch_id", inst.BatchID).
			WithDetail("expected_version", inst.Version).
			AsRetryable()
	}

	inst.Version++
	inst.LastUpdatedAt = now
	metrics.ObserveStoreOperation("update", "ok", time.Since(start))
	return nil
}

func (s *MongoStore) ListByPhase(ctx context.Context, phase Phase) ([]*Instance, error) {
	return s.list(ctx, bson.M{"phase": phase})
}

func (s *MongoStore) ListStale(ctx context.Context, phase Phase, olderThan time.Time) ([]*Instance, error) {
	return s.list(ctx, bson.M{
		"phase":           phase,
		"last_updated_at": bson.M{"$lt": olderThan},
	})
}

func (s *MongoStore) list(ctx context.Context, filter bson.M) ([]*Instance, error) {
	start := time.Now()

	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		metrics.ObserveStoreOperation("list", "error", time.Since(start))
		return nil, errors.ErrServiceUnavailable.WithCause(err).WithDetail("operation", "list")
	}
	defer cursor.Close(ctx)

	var instances []*Instance
	if err := cursor.All(ctx, &instances); err != nil {
		metrics.ObserveStoreOperation("list", "error", time.Since(start))
		return nil, errors.ErrServiceUnavailable.WithCause(err).WithDetail("operation", "list")
	}

	metrics.ObserveStoreOperation("list", "ok", time.Since(start))
	return instances, nil
}
