package broker

import (
	"context"
)

// Message is a broker-neutral delivery. Attempt counts deliveries of the
// same message observed by this consumer, starting at 1.
type Message struct {
	ID      string
	Key     []byte
	Body    []byte
	Headers map[string]string
	Attempt int
}

type Disposition int

const (
	// Ack removes the message from the queue.
	Ack Disposition = iota
	// Requeue hands the message back for a later redelivery.
	Requeue
)

func (d Disposition) String() string {
	if d == Ack {
		return "ack"
	}
	return "requeue"
}

type Producer interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

// Consumer delivers messages from one queue to handler, one at a time. The
// next message is not fetched until the handler has returned and its
// disposition has been applied. Consume returns nil once ctx is done.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg Message) Disposition
