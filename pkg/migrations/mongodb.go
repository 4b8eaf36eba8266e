package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"weld/internal/constants"
)

// EnsureMongoCollections creates the indexes the orchestration store relies
// on. The unique index on batch_id is what makes instance creation
// first-writer-wins.
func EnsureMongoCollections(ctx context.Context, db *mongo.Database, ordersCollection string) error {
	orchestrations := db.Collection(constants.OrchestrationCollection)

	orchestrationIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "batch_id", Value: 1}},
			Options: options.Index().SetName("idx_orchestrations_batch_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "phase", Value: 1}, {Key: "last_updated_at", Value: 1}},
			Options: options.Index().SetName("idx_orchestrations_phase_updated"),
		},
	}

	if _, err := orchestrations.Indexes().CreateMany(ctx, orchestrationIndexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create orchestration indexes: %w", err)
		}
	}

	if ordersCollection == "" {
		ordersCollection = constants.DefaultOrdersCollection
	}
	orders := db.Collection(ordersCollection)

	orderIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "batch_id", Value: 1}},
			Options: options.Index().SetName("idx_orders_batch_id"),
		},
	}

	if _, err := orders.Indexes().CreateMany(ctx, orderIndexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create order indexes: %w", err)
		}
	}

	return nil
}
