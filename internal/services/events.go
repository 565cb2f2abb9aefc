package services

import (
	"context"
	"time"

	"katalog/internal/models"
)

// Routing keys for product events.
const (
	EventProductCreated      = "product.created"
	EventProductUpdated      = "product.updated"
	EventProductDeleted      = "product.deleted"
	EventStockChanged        = "product.stock_changed"
	EventAvailabilityChanged = "product.availability_changed"
)

// ProductEvent is the message body published after a product mutation.
type ProductEvent struct {
	Type       string          `json:"type"`
	ProductID  string          `json:"product_id"`
	Product    *models.Product `json:"product,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventPublisher delivers an encoded event under a routing key.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }
