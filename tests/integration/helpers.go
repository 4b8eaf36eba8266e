package integration

import (
	"time"

	"weld/internal/logger"
	"weld/pkg/models"
)

const (
	containerStartupTimeout = 60
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createUploadNotification(id, url string) models.Notification {
	return models.Notification{
		ID:        id,
		Source:    "eventgrid",
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"url": url,
		},
		Metadata: models.Metadata{},
	}
}
