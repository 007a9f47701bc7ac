package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"vidresolve/internal/logging"
	"vidresolve/internal/metrics"
)

const (
	defaultPrefetch          = 8
	defaultReconnectDelay    = time.Second
	maxReconnectDelay        = 30 * time.Second
	consumerTag              = "vidresolve"
	deliveryOutcomeAck       = "ack"
	deliveryOutcomeRequeue   = "requeue"
	deliveryOutcomeDiscarded = "discard"
)

// ConsumerOptions configures the AMQP consumer.
type ConsumerOptions struct {
	URL            string
	Queue          string
	Prefetch       int
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// Consumer reads notifications from a durable AMQP queue with manual acks.
// Undecodable bodies are discarded, store failures are requeued, and
// everything else is acknowledged.
type Consumer struct {
	reconciler     *Reconciler
	url            string
	queue          string
	prefetch       int
	reconnectDelay time.Duration
	logger         *slog.Logger
}

// NewConsumer validates options and builds a consumer.
func NewConsumer(r *Reconciler, opts ConsumerOptions) (*Consumer, error) {
	if r == nil {
		return nil, errors.New("webhook: reconciler is required")
	}
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("webhook: amqp url is required")
	}
	queue := strings.TrimSpace(opts.Queue)
	if queue == "" {
		return nil, errors.New("webhook: amqp queue is required")
	}
	c := &Consumer{
		reconciler:     r,
		url:            url,
		queue:          queue,
		prefetch:       opts.Prefetch,
		reconnectDelay: opts.ReconnectDelay,
		logger:         logging.NewComponentLogger(opts.Logger, "webhook-amqp"),
	}
	if c.prefetch <= 0 {
		c.prefetch = defaultPrefetch
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = defaultReconnectDelay
	}
	return c, nil
}

// Run consumes until ctx is cancelled, reconnecting with backoff when the
// broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	delay := c.reconnectDelay
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			delay = c.reconnectDelay
			continue
		}
		logging.WarnWithContext(c.logger, "amqp consumer disconnected", "amqp_disconnected",
			logging.Error(err),
			logging.String("queue", c.queue),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldErrorHint, "check webhook.amqp_url and broker health"),
			logging.String(logging.FieldImpact, "queued notifications wait until the consumer reconnects"))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set amqp qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", c.queue, err)
	}
	deliveries, err := ch.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue %q: %w", c.queue, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("amqp consumer started", logging.String("queue", c.queue), logging.Int("prefetch", c.prefetch))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return fmt.Errorf("amqp connection closed: %w", amqpErr)
			}
			return errors.New("amqp connection closed")
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			c.handle(ctx, delivery)
		}
	}
}

// handle settles one delivery and returns what it did with it.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) string {
	ev, err := ParseEvent(d.Body)
	if err != nil {
		metrics.IncWebhookEvent("rejected", ReasonMalformed)
		logging.WarnWithContext(c.logger, "discarding undecodable notification", "amqp_malformed",
			logging.Error(err),
			logging.String("message_id", d.MessageId),
			logging.String(logging.FieldErrorHint, "check the publisher's payload format"),
			logging.String(logging.FieldImpact, "message dropped"))
		c.settle(d.Reject(false), "reject")
		return deliveryOutcomeDiscarded
	}

	if _, err := c.reconciler.HandleNotification(ctx, ev); err != nil {
		logging.WarnWithContext(c.logger, "requeueing notification after store failure", "amqp_requeue",
			logging.Error(err),
			logging.String("asset_id", ev.Data.ID),
			logging.String(logging.FieldErrorHint, "check the record store"),
			logging.String(logging.FieldImpact, "notification will be redelivered"))
		c.settle(d.Nack(false, true), "nack")
		return deliveryOutcomeRequeue
	}

	c.settle(d.Ack(false), "ack")
	return deliveryOutcomeAck
}

func (c *Consumer) settle(err error, action string) {
	if err != nil {
		c.logger.Debug("amqp settle failed", logging.String("action", action), logging.Error(err))
	}
}
