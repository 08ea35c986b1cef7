package transport

import (
	"context"
	"time"
)

// Message is one inbound delivery from the transport.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// HandlerFunc processes one message. It is called from the transport's
// receive goroutine and must not block on anything but the bridge.
type HandlerFunc func(ctx context.Context, msg Message) error

// Source is a subscription to a set of topics on some message transport.
type Source interface {
	// Start connects, subscribes and delivers messages to handler until ctx
	// is done.
	Start(ctx context.Context, handler HandlerFunc) error
	Close() error
	Connected() bool
	Name() string
}
