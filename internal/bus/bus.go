// Package bus connects the terminal channel to the agent loop in-process.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rezkam/codedive/internal/domain"
)

// A slow agent loop gets this long to drain the inbound queue before a
// publish is dropped.
const publishWait = 10 * time.Second

// Bus is a channel-backed domain.MessageBus. Inbound messages queue toward
// the agent loop; outbound replies dispatch synchronously to the handler the
// originating channel registered.
type Bus struct {
	inbound chan domain.InboundMessage
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[string]func(domain.OutboundMessage)
	closed   bool
}

// New creates a Bus buffering up to bufferSize inbound messages.
func New(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		inbound:  make(chan domain.InboundMessage, bufferSize),
		handlers: make(map[string]func(domain.OutboundMessage)),
		logger:   logger,
	}
}

// Publish enqueues an inbound message. When the queue is full it waits up to
// publishWait before giving up, so a burst degrades to backpressure rather
// than silent loss.
func (b *Bus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("publish on closed bus", "channel", msg.Channel)
		return
	}

	select {
	case b.inbound <- msg:
		return
	default:
	}

	b.logger.Warn("inbound queue full, waiting", "channel", msg.Channel, "sender", msg.SenderID)
	timer := time.NewTimer(publishWait)
	defer timer.Stop()
	select {
	case b.inbound <- msg:
	case <-timer.C:
		b.logger.Error("inbound message dropped after wait",
			"channel", msg.Channel, "sender", msg.SenderID)
	}
}

// Subscribe returns the inbound queue. The agent loop is the single consumer.
func (b *Bus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// SendOutbound routes a reply to the handler registered for its channel.
func (b *Bus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.RLock()
	handler := b.handlers[msg.Channel]
	b.mu.RUnlock()

	if handler == nil {
		b.logger.Warn("outbound message with no handler", "channel", msg.Channel)
		return
	}
	handler(msg)
}

// OnOutbound registers the reply handler for a channel name.
func (b *Bus) OnOutbound(channelName string, handler func(domain.OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

// Close shuts the inbound queue. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
