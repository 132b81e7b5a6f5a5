// Package amqp wraps RabbitMQ publish/consume for the pipeline's
// three durable queues (spec.md §6): backtest-tasks, trading-signals,
// and the optional entry-signal/opportunity-queue. Every queue is
// durable with persistent messages and manual ack, giving
// at-least-once delivery (spec.md §4.6 "Ordering guarantees").
package amqp

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"PerpMesh/internal/config"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/xerr"

	amqp "github.com/rabbitmq/amqp091-go"
)

var log = logger.With("broker.amqp")

// Conn wraps a single AMQP connection/channel pair, configured per
// spec.md §5: heartbeat 600s, blocked-connection timeout 300s.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to RabbitMQ per cfg.
func Dial(cfg config.Broker) (*Conn, error) {
	scheme := "amqp"
	if cfg.UseTLS {
		scheme = "amqps"
	}
	url := scheme + "://" + cfg.User + ":" + cfg.Pass + "@" +
		cfg.Host + ":" + strconv.Itoa(cfg.Port) + "/"

	conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: cfg.Heartbeat})
	if err != nil {
		return nil, xerr.Wrap(xerr.TransientExchange, "dial broker: %v", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerr.Wrap(xerr.TransientExchange, "open channel: %v", err)
	}

	c := &Conn{conn: conn, ch: ch}
	go c.watchBlocked(cfg.BlockedTimeout)
	return c, nil
}

// watchBlocked logs RabbitMQ's connection.blocked/unblocked
// notifications (flow-control under memory/disk alarms). The
// blocked-connection timeout itself (spec.md §5) bounds how long a
// caller is willing to let Publish hang while blocked, not something
// the driver enforces on its own.
func (c *Conn) watchBlocked(timeout time.Duration) {
	notify := c.conn.NotifyBlocked(make(chan amqp.Blocking, 1))
	for b := range notify {
		if b.Active {
			log.Warnf("connection blocked by broker: %s (timeout %s)", b.Reason, timeout)
		} else {
			log.Infof("connection unblocked")
		}
	}
}

func (c *Conn) Close() error {
	if err := c.ch.Close(); err != nil {
		log.Warnf("close channel: %v", err)
	}
	return c.conn.Close()
}

// DeclareQueue declares name as durable, non-exclusive, non-auto-delete.
func (c *Conn) DeclareQueue(name string) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return xerr.Wrap(xerr.TransientExchange, "declare queue %s: %v", name, err)
	}
	return nil
}

// Publish sends a JSON-encoded, persistent message to queue on the
// default exchange (routing key = queue name).
func (c *Conn) Publish(ctx context.Context, queue string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return xerr.Wrap(xerr.Fatal, "marshal message for %s: %v", queue, err)
	}
	err = c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		return xerr.Wrap(xerr.BrokerDelivery, "publish to %s: %v", queue, err)
	}
	return nil
}

// Delivery is the decoded-body view of one consumed message, carrying
// the ack/nack handles a consumer loop needs.
type Delivery struct {
	raw  amqp.Delivery
	Body []byte
}

// Ack acknowledges successful processing (spec.md §4.3/§4.4/§4.5: "ack
// on success" / "ack and drop" for domain-negative outcomes).
func (d Delivery) Ack() error {
	if err := d.raw.Ack(false); err != nil {
		return xerr.Wrap(xerr.BrokerDelivery, "ack: %v", err)
	}
	return nil
}

// Nack negative-acknowledges and requeues (spec.md §4.3: "on
// exception, negative-acknowledge with requeue"; §7: BrokerDelivery
// and TransientExchange handling).
func (d Delivery) Nack() error {
	if err := d.raw.Nack(false, true); err != nil {
		return xerr.Wrap(xerr.BrokerDelivery, "nack: %v", err)
	}
	return nil
}

// Consume starts a single-consumer loop on queue with prefetch=1
// (spec.md §5: "single consumer loop with broker prefetch=1"), calling
// handler once per delivery. The caller is responsible for Ack/Nack;
// Consume blocks until ctx is cancelled or the delivery channel closes
// (e.g. a connection reset, which the caller should treat as
// BrokerDelivery and reconnect per spec.md §7).
func (c *Conn) Consume(ctx context.Context, queue string, handler func(Delivery)) error {
	if err := c.ch.Qos(1, 0, false); err != nil {
		return xerr.Wrap(xerr.TransientExchange, "set qos: %v", err)
	}
	deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return xerr.Wrap(xerr.TransientExchange, "consume %s: %v", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return xerr.Wrap(xerr.BrokerDelivery, "delivery channel closed for %s", queue)
			}
			handler(Delivery{raw: d, Body: d.Body})
		}
	}
}

// Decode unmarshals the delivery body into out.
func (d Delivery) Decode(out any) error {
	if err := json.Unmarshal(d.Body, out); err != nil {
		return xerr.Wrap(xerr.ContractViolation, "decode message: %v", err)
	}
	return nil
}
