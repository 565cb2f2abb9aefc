package consumers_test

import (
	"context"
	"errors"
	"testing"

	"katalog/internal/consumers"
	"katalog/internal/models"
	"katalog/internal/repositories"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStockMutator struct {
	mock.Mock
}

func (m *MockStockMutator) DecreaseStock(ctx context.Context, id string, quantity int) (*models.Product, bool, error) {
	args := m.Called(ctx, id, quantity)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Product), args.Bool(1), args.Error(2)
}

func (m *MockStockMutator) IncreaseStock(ctx context.Context, id string, quantity int) (*models.Product, error) {
	args := m.Called(ctx, id, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func TestStockAdjustmentConsumer_Handle(t *testing.T) {
	ctx := context.Background()
	stock := new(MockStockMutator)
	consumer := consumers.NewStockAdjustmentConsumer(stock, nil)

	stock.On("IncreaseStock", ctx, "p1", 5).Return(&models.Product{ID: "p1", Stock: 15}, nil).Once()
	require.NoError(t, consumer.Handle(ctx, []byte(`{"product_id":"p1","action":"increase","quantity":5}`)))

	stock.On("DecreaseStock", ctx, "p1", 3).Return(&models.Product{ID: "p1", Stock: 12}, true, nil).Once()
	require.NoError(t, consumer.Handle(ctx, []byte(`{"product_id":"p1","action":"decrease","quantity":3}`)))

	stock.AssertExpectations(t)
}

func TestStockAdjustmentConsumer_Rejects(t *testing.T) {
	ctx := context.Background()
	stock := new(MockStockMutator)
	consumer := consumers.NewStockAdjustmentConsumer(stock, nil)

	stock.On("DecreaseStock", ctx, "p1", 100).Return(&models.Product{ID: "p1", Stock: 5}, false, nil).Once()
	stock.On("IncreaseStock", ctx, "gone", 1).Return(nil, repositories.ErrProductNotFound).Once()
	stock.On("IncreaseStock", ctx, "full", 1).Return(nil, repositories.ErrStockLimit).Once()

	bodies := []string{
		`not json`,
		`{"action":"increase","quantity":1}`,
		`{"product_id":"p1","action":"increase","quantity":-1}`,
		`{"product_id":"p1","action":"restock","quantity":1}`,
		`{"product_id":"p1","action":"decrease","quantity":100}`,
		`{"product_id":"gone","action":"increase","quantity":1}`,
		`{"product_id":"full","action":"increase","quantity":1}`,
		`{"product_id":"p1","action":"increase","quantity":9223372036854775807}`,
	}
	for _, body := range bodies {
		err := consumer.Handle(ctx, []byte(body))
		assert.True(t, errors.Is(err, consumers.ErrRejected), body)
	}
	stock.AssertExpectations(t)
}

func TestStockAdjustmentConsumer_HandleDelivery(t *testing.T) {
	ctx := context.Background()
	stock := new(MockStockMutator)
	consumer := consumers.NewStockAdjustmentConsumer(stock, nil)

	// Rejected messages are acked.
	assert.NoError(t, consumer.HandleDelivery(ctx, amqp.Delivery{Body: []byte(`{}`)}))

	// Storage failures are returned for redelivery.
	stock.On("IncreaseStock", ctx, "p1", 1).Return(nil, errors.New("database is locked")).Once()
	err := consumer.HandleDelivery(ctx, amqp.Delivery{Body: []byte(`{"product_id":"p1","action":"increase","quantity":1}`)})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, consumers.ErrRejected))
	stock.AssertExpectations(t)
}
