package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type ackCall struct {
	op      string
	requeue bool
}

type recordingAcknowledger struct {
	mu    sync.Mutex
	calls []ackCall
}

func (a *recordingAcknowledger) record(call ackCall) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	return nil
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	return a.record(ackCall{op: "ack"})
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	return a.record(ackCall{op: "nack", requeue: requeue})
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.record(ackCall{op: "reject", requeue: requeue})
}

func newTestClient(delay time.Duration) *Client {
	return &Client{logger: zap.NewNop(), retryDelay: delay}
}

func TestDispatch(t *testing.T) {
	failing := func(context.Context, amqp.Delivery) error { return errors.New("database is locked") }
	ok := func(context.Context, amqp.Delivery) error { return nil }

	tests := []struct {
		name        string
		handler     Handler
		redelivered bool
		want        ackCall
	}{
		{"success acks", ok, false, ackCall{op: "ack"}},
		{"first failure requeues", failing, false, ackCall{op: "nack", requeue: true}},
		{"second failure gives up", failing, true, ackCall{op: "nack", requeue: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acker := &recordingAcknowledger{}
			msg := amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Redelivered: tt.redelivered}

			newTestClient(time.Millisecond).dispatch(context.Background(), msg, tt.handler)
			assert.Equal(t, []ackCall{tt.want}, acker.calls)
		})
	}
}

func TestDispatch_WaitsBeforeRequeue(t *testing.T) {
	acker := &recordingAcknowledger{}
	msg := amqp.Delivery{Acknowledger: acker, DeliveryTag: 1}
	failing := func(context.Context, amqp.Delivery) error { return errors.New("boom") }

	start := time.Now()
	newTestClient(30*time.Millisecond).dispatch(context.Background(), msg, failing)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// Shutdown does not wait out the delay.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	newTestClient(time.Hour).dispatch(ctx, msg, failing)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, acker.calls, 2)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "disconnected", (&Client{}).Status())

	closed := &Client{closed: true}
	assert.Equal(t, "disconnected", closed.Status())
}
