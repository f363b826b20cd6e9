package confirmation

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSignalBridge shares accepted signals between server instances over
// Redis pub/sub. Received signals are delivered to the local hub.
type RedisSignalBridge struct {
	client  *redis.Client
	channel string
	hub     *SignalHub
	logger  *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisSignalBridge creates a bridge on channel.
func NewRedisSignalBridge(client *redis.Client, channel string, hub *SignalHub, logger *zap.Logger) *RedisSignalBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSignalBridge{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.Named("signal-bridge"),
	}
}

// Broadcast publishes signal to the other instances.
func (b *RedisSignalBridge) Broadcast(ctx context.Context, signal domain.Signal) error {
	payload, err := encodeSignal(signal)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

// Start subscribes to the channel and relays messages until Stop.
func (b *RedisSignalBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.pubsub = pubsub
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.relay(pubsub.Channel(), b.done)
	b.logger.Info("signal bridge started", zap.String("channel", b.channel))
	return nil
}

// Stop closes the subscription.
func (b *RedisSignalBridge) Stop() {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return
	}
	if err := pubsub.Close(); err != nil {
		b.logger.Warn("failed to close subscription", zap.Error(err))
	}
	<-done
}

func (b *RedisSignalBridge) relay(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		b.handle(msg.Payload)
	}
}

func (b *RedisSignalBridge) handle(payload string) {
	signal, err := decodeSignal(payload)
	if err != nil {
		b.logger.Warn("dropping malformed signal", zap.Error(err))
		return
	}
	b.hub.Deliver(signal)
}

func encodeSignal(signal domain.Signal) (string, error) {
	data, err := json.Marshal(signal)
	if err != nil {
		return "", fmt.Errorf("encode signal: %w", err)
	}
	return string(data), nil
}

func decodeSignal(payload string) (domain.Signal, error) {
	var signal domain.Signal
	if err := json.Unmarshal([]byte(payload), &signal); err != nil {
		return domain.Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	if signal.PaymentID == "" || !signal.Status.IsTerminal() {
		return domain.Signal{}, fmt.Errorf("decode signal: incomplete payload")
	}
	return signal, nil
}
