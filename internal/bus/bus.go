// Package bus connects channels to the reply loop.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/masganem/PuffleBot/internal/domain"
	"github.com/masganem/PuffleBot/internal/metrics"
)

const (
	defaultBufferSize     = 100
	defaultPublishTimeout = 10 * time.Second
)

// Config configures an InMemoryBus.
type Config struct {
	BufferSize     int           // default: 100
	PublishTimeout time.Duration // how long Publish waits on a full buffer; default: 10s
	Logger         *slog.Logger
}

// InMemoryBus queues inbound messages on a buffered channel and hands
// outbound messages to the handler registered for their channel.
type InMemoryBus struct {
	inbound        chan domain.InboundMessage
	publishTimeout time.Duration
	logger         *slog.Logger

	mu       sync.RWMutex
	handlers map[string]func(domain.OutboundMessage)
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *InMemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &InMemoryBus{
		inbound:        make(chan domain.InboundMessage, cfg.BufferSize),
		publishTimeout: cfg.PublishTimeout,
		logger:         cfg.Logger,
		handlers:       make(map[string]func(domain.OutboundMessage)),
		done:           make(chan struct{}),
	}
}

// Publish queues msg. On a full buffer it waits up to the publish timeout and
// then drops the message.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("publish on closed bus", "channel", msg.Channel, "sender", msg.SenderID)
		return
	}
	metrics.InboundMessages.Inc()

	select {
	case b.inbound <- msg:
		return
	default:
	}

	b.logger.Warn("inbound bus full, waiting", "channel", msg.Channel, "sender", msg.SenderID)
	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case b.inbound <- msg:
	case <-timer.C:
		b.logger.Error("message dropped: bus full", "channel", msg.Channel, "sender", msg.SenderID, "waited", b.publishTimeout)
	case <-b.done:
		b.logger.Warn("message dropped: bus closing", "channel", msg.Channel, "sender", msg.SenderID)
	}
}

// Subscribe returns the inbound queue. It is closed by Close.
func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// SendOutbound runs the handler registered for msg.Channel synchronously.
func (b *InMemoryBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no outbound handler for channel", "channel", msg.Channel, "chat", msg.ChatID)
		return
	}
	handler(msg)
}

// OnOutbound registers the outbound handler for a channel, replacing any previous one.
func (b *InMemoryBus) OnOutbound(channelName string, handler func(domain.OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

// Close stops accepting messages and closes the inbound queue. Safe to call twice.
func (b *InMemoryBus) Close() {
	// Wake publishers blocked on a full buffer; they hold the read lock.
	b.closeOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.inbound)
}
