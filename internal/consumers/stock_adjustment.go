// Package consumers applies commands received from the message broker.
package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"katalog/internal/models"
	"katalog/internal/repositories"
	"katalog/internal/services"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// ErrRejected marks a message that will never succeed. It is acked and dropped.
var ErrRejected = errors.New("stock adjustment rejected")

// StockMutator is the part of the product service the consumer drives.
type StockMutator interface {
	DecreaseStock(ctx context.Context, id string, quantity int) (*models.Product, bool, error)
	IncreaseStock(ctx context.Context, id string, quantity int) (*models.Product, error)
}

// StockAdjustment is the message body on the stock queue.
type StockAdjustment struct {
	ProductID string `json:"product_id"`
	Action    string `json:"action"`
	Quantity  int    `json:"quantity"`
}

// StockAdjustmentConsumer applies StockAdjustment messages.
type StockAdjustmentConsumer struct {
	stock  StockMutator
	logger *zap.Logger
}

// NewStockAdjustmentConsumer creates a consumer backed by stock.
func NewStockAdjustmentConsumer(stock StockMutator, logger *zap.Logger) *StockAdjustmentConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockAdjustmentConsumer{stock: stock, logger: logger}
}

// HandleDelivery is a rabbitmq.Handler. Rejected messages are logged and
// acked; other failures are returned so the delivery is requeued.
func (s *StockAdjustmentConsumer) HandleDelivery(ctx context.Context, msg amqp.Delivery) error {
	err := s.Handle(ctx, msg.Body)
	if errors.Is(err, ErrRejected) {
		s.logger.Warn("dropping stock adjustment",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.ByteString("body", msg.Body),
			zap.Error(err),
		)
		return nil
	}
	return err
}

// Handle decodes and applies one adjustment.
func (s *StockAdjustmentConsumer) Handle(ctx context.Context, body []byte) error {
	var cmd StockAdjustment
	if err := json.Unmarshal(body, &cmd); err != nil {
		return fmt.Errorf("%w: malformed body: %v", ErrRejected, err)
	}
	if cmd.ProductID == "" {
		return fmt.Errorf("%w: missing product_id", ErrRejected)
	}
	if cmd.Quantity < 0 || cmd.Quantity > models.MaxStock {
		return fmt.Errorf("%w: quantity %d out of range", ErrRejected, cmd.Quantity)
	}

	var (
		product *models.Product
		err     error
	)
	switch cmd.Action {
	case "increase":
		product, err = s.stock.IncreaseStock(ctx, cmd.ProductID, cmd.Quantity)
	case "decrease":
		var ok bool
		product, ok, err = s.stock.DecreaseStock(ctx, cmd.ProductID, cmd.Quantity)
		if err == nil && !ok {
			return fmt.Errorf("%w: not enough stock on %s to decrease by %d", ErrRejected, cmd.ProductID, cmd.Quantity)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrRejected, cmd.Action)
	}

	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) ||
			errors.Is(err, repositories.ErrStockLimit) ||
			errors.Is(err, services.ErrInvalidQuantity) {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return fmt.Errorf("failed to apply stock adjustment to %s: %w", cmd.ProductID, err)
	}

	s.logger.Info("stock adjusted",
		zap.String("product_id", product.ID),
		zap.String("action", cmd.Action),
		zap.Int("quantity", cmd.Quantity),
		zap.Int("stock", product.Stock),
	)
	return nil
}
