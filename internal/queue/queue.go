package queue

import (
	"context"
	"errors"
)

var (
	ErrPreconditionFailed    = errors.New("queue exists with different parameters")
	ErrSubscriptionCancelled = errors.New("subscription cancelled by broker")
	ErrClosed                = errors.New("queue client closed")
)

// Declaration describes the queue both sides must agree on. Declaring an existing
// queue with identical parameters is a no-op; any difference fails with ErrPreconditionFailed.
type Declaration struct {
	Name       string
	Durable    bool
	Exclusive  bool
	AutoDelete bool
}

// DefaultDeclaration is a non-durable, non-exclusive, non-auto-delete queue without arguments.
func DefaultDeclaration(name string) Declaration {
	return Declaration{Name: name}
}

// Producer publishes payloads to the declared queue
type Producer interface {
	Declare(ctx context.Context, decl Declaration) error
	Publish(ctx context.Context, body []byte) error
	Close() error
}

// Consumer subscribes to the declared queue. The returned channel is closed when the
// subscription ends: ctx done, connection lost or broker side cancel (OnCancel runs first).
type Consumer interface {
	Declare(ctx context.Context, decl Declaration) error
	Consume(ctx context.Context, opts ConsumeOptions) (<-chan Delivery, error)
	Close() error
}

type ConsumeOptions struct {
	// Broker removes the message at delivery time, Ack/Reject become no-ops
	AutoAck bool

	// Max unacknowledged deliveries in flight, 0 leaves the broker default
	Prefetch int

	// Called with the consumer tag when the broker cancels the subscription
	OnCancel func(consumerTag string)
}

// Delivery is a single received message
type Delivery struct {
	Body        []byte
	Redelivered bool
	ConsumerTag string

	ack    func() error
	reject func(requeue bool) error
}

// Ack confirms the delivery. Nil in auto-ack mode.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Reject gives the delivery back to the broker, requeued or dropped. Nil in auto-ack mode.
func (d *Delivery) Reject(requeue bool) error {
	if d.reject == nil {
		return nil
	}
	return d.reject(requeue)
}
