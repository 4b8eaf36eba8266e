package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weld/internal/logger"
	"weld/internal/orchestration"
	"weld/pkg/models"
)

type nopComposer struct{}

func (nopComposer) Compose(ctx context.Context, items map[string]string) (string, error) {
	return "[]", nil
}

type nopPersistor struct{}

func (nopPersistor) PersistEach(ctx context.Context, batchID, combined string) error {
	return nil
}

func testContext() context.Context {
	return context.Background()
}

func setupRouter(t *testing.T) (*gin.Engine, orchestration.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := orchestration.NewMemoryStore()
	orch := orchestration.NewOrchestrator(store, nil, nopComposer{}, nopPersistor{}, logger.NopLogger())
	dispatcher := orchestration.NewDispatcher(orch, nil, nil, logger.NopLogger())

	router := gin.New()
	NewHandler(dispatcher, store, logger.NopLogger()).RegisterRoutes(router)
	return router, store
}

func postNotification(t *testing.T, router *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPostNotificationAccepted(t *testing.T) {
	router, store := setupRouter(t)

	w := postNotification(t, router, models.Notification{
		Payload: map[string]interface{}{
			"url": "https://store/orders-inbound/42-OrderHeaderDetails.csv",
		},
	})

	require.Equal(t, http.StatusAccepted, w.Code)

	var info models.DispatchInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "42", info.BatchID)
	assert.Equal(t, "OrderHeaderDetails.csv", info.ItemName)
	assert.True(t, info.Valid)

	inst, err := store.Get(testContext(), "42")
	require.NoError(t, err)
	assert.Len(t, inst.ReceivedItems, 1)
}

func TestPostNotificationMalformedURLStillAccepted(t *testing.T) {
	router, _ := setupRouter(t)

	w := postNotification(t, router, models.Notification{
		Payload: map[string]interface{}{
			"url": "https://store/orders-inbound/no-batch-prefix",
		},
	})

	require.Equal(t, http.StatusAccepted, w.Code)

	var info models.DispatchInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.False(t, info.Valid)
	assert.Empty(t, info.BatchID)
}

func TestPostNotificationInvalidJSON(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader([]byte("{{{")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBatch(t *testing.T) {
	router, store := setupRouter(t)

	inst := orchestration.NewInstance("7")
	require.NoError(t, store.Create(testContext(), inst))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got orchestration.Instance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "7", got.BatchID)
	assert.Equal(t, orchestration.PhaseAwaitingInputs, got.Phase)
}

func TestGetBatchNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
