package broker

import (
	"context"
	"weld/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.Notification) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg models.Notification) error
