package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"weld/internal/composer"
	"weld/internal/lock"
	"weld/internal/orchestration"
	"weld/internal/persistor"
	"weld/pkg/migrations"
)

func startComposerServer(t *testing.T, combined string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(combined))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestBatchFlowAgainstRealBackends(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)

	ctx := context.Background()
	require.NoError(t, migrations.EnsureMongoCollections(ctx, infra.MongoDB, "orders"))

	combined := `[{"orderId":"1","sku":"A"},{"orderId":"2","sku":"B"}]`
	server := startComposerServer(t, combined)

	store := orchestration.NewMongoStore(infra.MongoDB)
	composerClient := composer.NewClient(server.URL, 5*time.Second, createTestLogger())
	persistorClient := persistor.NewMongoPersistor(infra.MongoDB, "orders", createTestLogger())
	orchestrator := orchestration.NewOrchestrator(store, nil, composerClient, persistorClient, createTestLogger())

	locks := lock.NewManager(infra.RedisClient, 30*time.Second)
	dispatcher := orchestration.NewDispatcher(orchestrator, nil, locks, createTestLogger())

	urls := []string{
		"https://store/orders-inbound/42-OrderHeaderDetails.csv",
		"https://store/orders-inbound/42-OrderLineItems.csv",
		"https://store/orders-inbound/42-ProductInformation.csv",
	}
	for i, url := range urls {
		msg := createUploadNotification(string(rune('a'+i)), url)
		require.NoError(t, dispatcher.HandleNotification(ctx, msg))
	}

	inst, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, orchestration.PhaseCompleted, inst.Phase)
	assert.Equal(t, combined, inst.CombinedResult)

	count, err := infra.MongoDB.Collection("orders").CountDocuments(ctx, bson.M{"batch_id": "42"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestBatchFlowResumeAfterRestart(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)

	ctx := context.Background()
	require.NoError(t, migrations.EnsureMongoCollections(ctx, infra.MongoDB, "orders"))

	combined := `[{"orderId":"9"}]`
	server := startComposerServer(t, combined)

	store := orchestration.NewMongoStore(infra.MongoDB)

	// Simulate a crash after the batch committed to composing but before
	// the composer was called.
	inst := orchestration.NewInstance("77")
	inst.ReceivedItems = map[string]string{
		orchestration.ItemOrderHeaderDetails: "url-1",
		orchestration.ItemOrderLineItems:     "url-2",
		orchestration.ItemProductInformation: "url-3",
	}
	inst.Phase = orchestration.PhaseComposing
	require.NoError(t, store.Create(ctx, inst))

	composerClient := composer.NewClient(server.URL, 5*time.Second, createTestLogger())
	persistorClient := persistor.NewMongoPersistor(infra.MongoDB, "orders", createTestLogger())
	orchestrator := orchestration.NewOrchestrator(store, nil, composerClient, persistorClient, createTestLogger())

	require.NoError(t, orchestrator.Resume(ctx))

	got, err := store.Get(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, orchestration.PhaseCompleted, got.Phase)
	assert.Equal(t, combined, got.CombinedResult)

	count, err := infra.MongoDB.Collection("orders").CountDocuments(ctx, bson.M{"batch_id": "77"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBatchFlowComposerDownFailsBatch(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)

	ctx := context.Background()
	require.NoError(t, migrations.EnsureMongoCollections(ctx, infra.MongoDB, "orders"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	store := orchestration.NewMongoStore(infra.MongoDB)
	composerClient := composer.NewClient(server.URL, 5*time.Second, createTestLogger())
	persistorClient := persistor.NewMongoPersistor(infra.MongoDB, "orders", createTestLogger())
	orchestrator := orchestration.NewOrchestrator(store, nil, composerClient, persistorClient, createTestLogger())
	dispatcher := orchestration.NewDispatcher(orchestrator, nil, nil, createTestLogger())

	urls := []string{
		"https://store/orders-inbound/13-OrderHeaderDetails.csv",
		"https://store/orders-inbound/13-OrderLineItems.csv",
		"https://store/orders-inbound/13-ProductInformation.csv",
	}
	for i, url := range urls {
		msg := createUploadNotification(string(rune('a'+i)), url)
		require.NoError(t, dispatcher.HandleNotification(ctx, msg))
	}

	inst, err := store.Get(ctx, "13")
	require.NoError(t, err)
	assert.Equal(t, orchestration.PhaseFailed, inst.Phase)
	assert.NotEmpty(t, inst.FailureReason)

	count, err := infra.MongoDB.Collection("orders").CountDocuments(ctx, bson.M{"batch_id": "13"})
	require.NoError(t, err)
	assert.Zero(t, count)
}
