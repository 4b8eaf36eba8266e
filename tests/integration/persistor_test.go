package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"weld/internal/persistor"
)

func TestMongoPersistor_InsertsEachElement(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	p := persistor.NewMongoPersistor(infra.MongoDB, "orders", createTestLogger())
	ctx := context.Background()

	combined := `[{"orderId":"1","sku":"A"},{"orderId":"2","sku":"B"},{"orderId":"3","sku":"C"}]`
	err := p.PersistEach(ctx, "42", combined)
	require.NoError(t, err)

	cursor, err := infra.MongoDB.Collection("orders").Find(ctx, bson.M{"batch_id": "42"})
	require.NoError(t, err)

	var records []bson.M
	require.NoError(t, cursor.All(ctx, &records))
	require.Len(t, records, 3)

	for _, record := range records {
		assert.Equal(t, "42", record["batch_id"])
		assert.NotEmpty(t, record["orderId"])
	}
}

func TestMongoPersistor_EmptyArray(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	p := persistor.NewMongoPersistor(infra.MongoDB, "orders", createTestLogger())
	ctx := context.Background()

	require.NoError(t, p.PersistEach(ctx, "42", "[]"))

	count, err := infra.MongoDB.Collection("orders").CountDocuments(ctx, bson.M{"batch_id": "42"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMongoPersistor_BatchesStayIsolated(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	p := persistor.NewMongoPersistor(infra.MongoDB, "orders", createTestLogger())
	ctx := context.Background()

	require.NoError(t, p.PersistEach(ctx, "1", `[{"orderId":"a"}]`))
	require.NoError(t, p.PersistEach(ctx, "2", `[{"orderId":"b"},{"orderId":"c"}]`))

	count, err := infra.MongoDB.Collection("orders").CountDocuments(ctx, bson.M{"batch_id": "2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
