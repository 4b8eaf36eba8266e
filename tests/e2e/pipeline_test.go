package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weld/pkg/models"
)

const (
	kafkaBroker      = "localhost:29092"
	inputTopic       = "blob_notifications"
	eventsTopic      = "batch_events"
	eventWaitTimeout = 30 * time.Second
)

func TestBatchPipelineEndToEnd(t *testing.T) {
	batchID := fmt.Sprintf("%d", time.Now().UnixNano())

	uploads := []string{
		fmt.Sprintf("https://storage.example.com/orders-inbound/%s-OrderHeaderDetails.csv", batchID),
		fmt.Sprintf("https://storage.example.com/orders-inbound/%s-OrderLineItems.csv", batchID),
		fmt.Sprintf("https://storage.example.com/orders-inbound/%s-ProductInformation.csv", batchID),
	}

	for _, url := range uploads {
		err := sendNotificationToKafka(t, inputTopic, uploadNotification(url))
		require.NoError(t, err, "failed to send upload notification")
	}

	event := waitForBatchEvent(t, batchID)
	require.NotNil(t, event, "batch should reach a terminal phase")

	assert.Equal(t, models.TypeBatchCompleted, event.Type)
	assert.Equal(t, batchID, event.Payload["batch_id"])

	inst := getBatch(t, batchID)
	assert.Equal(t, "completed", inst["phase"])
}

func TestBatchPipelineArrivalOrderIrrelevant(t *testing.T) {
	batchID := fmt.Sprintf("%d", time.Now().UnixNano())

	// Reverse of the natural upload order.
	uploads := []string{
		fmt.Sprintf("https://storage.example.com/orders-inbound/%s-ProductInformation.csv", batchID),
		fmt.Sprintf("https://storage.example.com/orders-inbound/%s-OrderLineItems.csv", batchID),
		fmt.Sprintf("https://storage.example.com/orders-inbound/%s-OrderHeaderDetails.csv", batchID),
	}

	for _, url := range uploads {
		err := sendNotificationToKafka(t, inputTopic, uploadNotification(url))
		require.NoError(t, err)
	}

	event := waitForBatchEvent(t, batchID)
	require.NotNil(t, event)
	assert.Equal(t, models.TypeBatchCompleted, event.Type)
}

func TestBatchPipelineDuplicateDelivery(t *testing.T) {
	batchID := fmt.Sprintf("%d", time.Now().UnixNano())

	header := fmt.Sprintf("https://storage.example.com/orders-inbound/%s-OrderHeaderDetails.csv", batchID)

	// The same upload notification delivered twice.
	require.NoError(t, sendNotificationToKafka(t, inputTopic, uploadNotification(header)))
	require.NoError(t, sendNotificationToKafka(t, inputTopic, uploadNotification(header)))

	remaining := []string{
		fmt.Sprintf("https://storage.example.com/orders-inbound/%s-OrderLineItems.csv", batchID),
		fmt.Sprintf("https://storage.example.com/orders-inbound/%s-ProductInformation.csv", batchID),
	}
	for _, url := range remaining {
		require.NoError(t, sendNotificationToKafka(t, inputTopic, uploadNotification(url)))
	}

	event := waitForBatchEvent(t, batchID)
	require.NotNil(t, event)
	assert.Equal(t, models.TypeBatchCompleted, event.Type)
}

func TestBatchPipelineIncompleteBatchStaysOpen(t *testing.T) {
	batchID := fmt.Sprintf("%d", time.Now().UnixNano())

	url := fmt.Sprintf("https://storage.example.com/orders-inbound/%s-OrderHeaderDetails.csv", batchID)
	require.NoError(t, sendNotificationToKafka(t, inputTopic, uploadNotification(url)))

	time.Sleep(5 * time.Second)

	inst := getBatch(t, batchID)
	assert.Equal(t, "awaiting_inputs", inst["phase"])
}

func TestBatchPipelineMalformedURLCreatesNoBatch(t *testing.T) {
	msg := uploadNotification("https://storage.example.com/orders-inbound/no-batch-prefix.csv")
	require.NoError(t, sendNotificationToKafka(t, inputTopic, msg))

	time.Sleep(5 * time.Second)

	statusCode := getBatchStatusCode(t, "no")
	assert.Equal(t, 404, statusCode, "malformed notification must not create a batch")
}

func uploadNotification(url string) models.Notification {
	return models.Notification{
		ID:        uuid.New().String(),
		Source:    "e2e_test",
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"url": url,
		},
		Metadata: models.Metadata{},
	}
}

func sendNotificationToKafka(t *testing.T, topic string, message models.Notification) error {
	t.Helper()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaBroker),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	defer writer.Close()

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(message.ID),
			Value: body,
			Time:  time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func waitForBatchEvent(t *testing.T, batchID string) *models.Notification {
	t.Helper()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{kafkaBroker},
		Topic:          eventsTopic,
		GroupID:        fmt.Sprintf("e2e-event-waiter-%s", uuid.New().String()),
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        2 * time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), eventWaitTimeout)
	defer cancel()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if err == context.DeadlineExceeded {
				return nil
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		var event models.Notification
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		_ = reader.CommitMessages(ctx, msg)

		if event.Payload["batch_id"] == batchID {
			return &event
		}
	}
}
