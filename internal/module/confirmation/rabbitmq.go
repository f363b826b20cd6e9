package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrNotConfirmed is returned when the broker nacks a published notification.
var ErrNotConfirmed = errors.New("notification not confirmed by broker")

// publishConfirm is the broker confirm of one published message.
type publishConfirm interface {
	WaitContext(ctx context.Context) (bool, error)
}

type publishFunc func(ctx context.Context, queue string, msg amqp.Publishing) (publishConfirm, error)

// RabbitMQDispatcher publishes notifications to a durable queue with
// publisher confirms. Each publish waits for the confirm of its own
// delivery tag.
type RabbitMQDispatcher struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	publish publishFunc
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewRabbitMQDispatcher dials url and declares queue.
func NewRabbitMQDispatcher(url, queue string, logger *zap.Logger) (*RabbitMQDispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	return &RabbitMQDispatcher{
		conn:    conn,
		ch:      ch,
		queue:   queue,
		publish: channelPublisher(ch),
		logger:  logger.Named("rabbitmq"),
	}, nil
}

func channelPublisher(ch *amqp.Channel) publishFunc {
	return func(ctx context.Context, queue string, msg amqp.Publishing) (publishConfirm, error) {
		dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
		if err != nil {
			return nil, err
		}
		if dc == nil {
			return nil, ErrNotConfirmed
		}
		return dc, nil
	}
}

// Dispatch publishes n as a persistent message and waits for the confirm.
func (d *RabbitMQDispatcher) Dispatch(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Type:         n.Type,
		MessageId:    n.PaymentID,
		Timestamp:    n.OccurredAt,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	d.mu.Lock()
	confirm, err := d.publish(ctx, d.queue, msg)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}

	d.logger.Debug("notification published",
		zap.String("payment_id", n.PaymentID),
		zap.String("type", n.Type))
	return nil
}

// Close closes the channel and connection.
func (d *RabbitMQDispatcher) Close() error {
	if d == nil {
		return nil
	}
	if err := d.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		d.logger.Warn("failed to close channel", zap.Error(err))
	}
	return d.conn.Close()
}
