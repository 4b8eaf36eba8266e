package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"weld/pkg/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantBatchID string
		wantItem    string
		wantValid   bool
	}{
		{
			name:        "order header details",
			url:         "https://store.blob.example.com/orders-inbound/1234-OrderHeaderDetails.csv",
			wantBatchID: "1234",
			wantItem:    "OrderHeaderDetails.csv",
			wantValid:   true,
		},
		{
			name:        "order line items",
			url:         "https://store.blob.example.com/orders-inbound/1234-OrderLineItems.csv",
			wantBatchID: "1234",
			wantItem:    "OrderLineItems.csv",
			wantValid:   true,
		},
		{
			name:        "product information",
			url:         "https://store.blob.example.com/orders-inbound/98765-ProductInformation.csv",
			wantBatchID: "98765",
			wantItem:    "ProductInformation.csv",
			wantValid:   true,
		},
		{
			name:      "no numeric prefix",
			url:       "https://store.blob.example.com/orders-inbound/OrderHeaderDetails.csv",
			wantValid: false,
		},
		{
			name:      "missing separator",
			url:       "https://store.blob.example.com/orders-inbound/1234OrderHeaderDetails.csv",
			wantValid: false,
		},
		{
			name:      "trailing slash",
			url:       "https://store.blob.example.com/orders-inbound/1234-OrderHeaderDetails.csv/",
			wantValid: false,
		},
		{
			name:        "unexpected file name still parses",
			url:         "https://store.blob.example.com/orders-inbound/1234-SomethingElse.txt",
			wantBatchID: "1234",
			wantItem:    "SomethingElse.txt",
			wantValid:   true,
		},
		{
			name:        "prefix digits only match last segment",
			url:         "https://store.blob.example.com/55-container/1234-OrderLineItems.csv",
			wantBatchID: "1234",
			wantItem:    "OrderLineItems.csv",
			wantValid:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := models.Notification{
				ID:      "n-1",
				Source:  "eventgrid",
				Payload: map[string]interface{}{"url": tt.url},
			}

			arrival := Normalize(n)
			assert.Equal(t, tt.wantValid, arrival.Valid)
			assert.Equal(t, tt.wantBatchID, arrival.BatchID)
			assert.Equal(t, tt.wantItem, arrival.ItemName)
			if tt.url != "" {
				assert.Equal(t, tt.url, arrival.Location)
			}
			assert.False(t, arrival.ReceivedAt.IsZero())
		})
	}
}

func TestNormalizeMissingURL(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{name: "nil payload", payload: nil},
		{name: "empty payload", payload: map[string]interface{}{}},
		{name: "url wrong type", payload: map[string]interface{}{"url": 42}},
		{name: "empty url", payload: map[string]interface{}{"url": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arrival := Normalize(models.Notification{Payload: tt.payload})
			assert.False(t, arrival.Valid)
			assert.Empty(t, arrival.BatchID)
			assert.Empty(t, arrival.ItemName)
		})
	}
}
