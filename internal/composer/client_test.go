package composer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weld/internal/logger"
	"weld/internal/orchestration"
	"weld/pkg/errors"
)

func allItems() map[string]string {
	return map[string]string{
		orchestration.ItemOrderHeaderDetails: "https://store/1-OrderHeaderDetails.csv",
		orchestration.ItemOrderLineItems:     "https://store/1-OrderLineItems.csv",
		orchestration.ItemProductInformation: "https://store/1-ProductInformation.csv",
	}
}

func TestComposeSuccess(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"orderId":"1"},{"orderId":"2"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, logger.NopLogger())

	result, err := client.Compose(context.Background(), allItems())
	require.NoError(t, err)
	assert.Equal(t, `[{"orderId":"1"},{"orderId":"2"}]`, result)

	assert.Equal(t, map[string]string{
		"orderHeaderDetailsCSVUrl": "https://store/1-OrderHeaderDetails.csv",
		"orderLineItemsCSVUrl":     "https://store/1-OrderLineItems.csv",
		"productInformationCSVUrl": "https://store/1-ProductInformation.csv",
	}, received)
}

func TestComposeNonSuccessStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "server error", status: http.StatusInternalServerError},
		{name: "bad request", status: http.StatusBadRequest},
		{name: "redirect", status: http.StatusMovedPermanently},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, 5*time.Second, logger.NopLogger())

			_, err := client.Compose(context.Background(), allItems())
			require.Error(t, err)
			assert.True(t, errors.IsUnavailable(err))
		})
	}
}

func TestComposeMissingItem(t *testing.T) {
	client := NewClient("http://localhost:1", 5*time.Second, logger.NopLogger())

	items := allItems()
	delete(items, orchestration.ItemOrderLineItems)

	_, err := client.Compose(context.Background(), items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
}

func TestComposeConnectionRefused(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, logger.NopLogger())

	_, err := client.Compose(context.Background(), allItems())
	require.Error(t, err)
	assert.True(t, errors.IsUnavailable(err))
}
