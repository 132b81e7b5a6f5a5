package amqp

import (
	"context"
	"testing"
	"time"

	"PerpMesh/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) *Conn {
	t.Helper()
	cfg := config.LoadBroker()
	cfg.Queue = "amqp-test-queue"
	c, err := Dial(cfg)
	if err != nil {
		t.Skipf("rabbitmq not reachable: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type probeMsg struct {
	Value string `json:"value"`
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	c := newTestConn(t)
	require.NoError(t, c.DeclareQueue("amqp-test-queue"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.Publish(ctx, "amqp-test-queue", probeMsg{Value: "hello"}))

	received := make(chan probeMsg, 1)
	consumeCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	go c.Consume(consumeCtx, "amqp-test-queue", func(d Delivery) {
		var m probeMsg
		if err := d.Decode(&m); err == nil {
			received <- m
		}
		_ = d.Ack()
	})

	select {
	case m := <-received:
		assert.Equal(t, "hello", m.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
