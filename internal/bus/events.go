// Package bus carries raw channel signals between transports and the
// intake pipeline.
package bus

import (
	"sync"
	"time"
)

// InboundMessage is a raw signal received from a channel transport.
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a fully composed, guardrail-passed message headed
// for a channel transport.
type OutboundMessage struct {
	Channel  string
	To       string
	Subject  string
	Content  string
	Metadata map[string]any
}

// MessageBus fans inbound messages into a buffered channel and routes
// outbound messages to per-channel subscribers.
type MessageBus struct {
	inbound  chan InboundMessage
	mu       sync.RWMutex
	outbound map[string]func(OutboundMessage)
}

func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = 1
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(map[string]func(OutboundMessage)),
	}
}

func (b *MessageBus) Inbound() <-chan InboundMessage {
	return b.inbound
}

// PublishInbound drops the message when the buffer is full rather
// than blocking a transport's receive loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	select {
	case b.inbound <- msg:
		return true
	default:
		return false
	}
}

func (b *MessageBus) SubscribeOutbound(channel string, handler func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound[channel] = handler
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	b.mu.RLock()
	handler := b.outbound[msg.Channel]
	b.mu.RUnlock()
	if handler == nil {
		return false
	}
	handler(msg)
	return true
}
