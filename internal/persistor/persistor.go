package persistor

import (
	"context"
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"weld/internal/constants"
	"weld/internal/logger"
	"weld/pkg/errors"
	"weld/pkg/metrics"
	"weld/pkg/tracing"
)

// MongoPersistor writes each element of a combined result into the
// orders collection, one insert per element. Inserts are not atomic
// across elements: a mid-sequence failure leaves earlier elements in
// place and surfaces as a single error.
type MongoPersistor struct {
	collection *mongo.Collection
	logger     logger.Logger
}

func NewMongoPersistor(db *mongo.Database, collectionName string, log logger.Logger) *MongoPersistor {
	if collectionName == "" {
		collectionName = constants.DefaultOrdersCollection
	}
	return &MongoPersistor{
		collection: db.Collection(collectionName),
		logger:     log,
	}
}

func (p *MongoPersistor) PersistEach(ctx context.Context, batchID, combined string) error {
	ctx, span := tracing.GetTracer("persistor").Start(ctx, "persistor.persist_each")
	defer span.End()

	start := time.Now()

	var records []map[string]interface{}
	if err := json.Unmarshal([]byte(combined), &records); err != nil {
		metrics.ObservePersistDuration(time.Since(start), "decode_error")
		return errors.ErrValidation.
			WithCause(err).
			WithDetail("message", "combined result is not a JSON array")
	}

	for i, record := range records {
		record["batch_id"] = batchID

		if _, err := p.collection.InsertOne(ctx, record); err != nil {
			metrics.ObservePersistDuration(time.Since(start), "error")
			return errors.ErrServiceUnavailable.
				WithCause(err).
				WithDetail("batch_id", batchID).
				WithDetail("element_index", i)
		}
		metrics.RecordsPersistedTotal.Inc()
	}

	p.logger.InfowCtx(ctx, "Persisted combined records",
		"batch_id", batchID,
		"records", len(records),
	)
	metrics.ObservePersistDuration(time.Since(start), "ok")
	return nil
}
