package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueNotFound = errors.New("queue not found")
)

// MemoryBroker is an in-process broker with the same queue semantics as the AMQP transport:
// FIFO queues on the default exchange, declaration preconditions, auto-ack removal at
// delivery time and requeue of unacknowledged messages. Like delivery tags on an AMQP
// channel, unacknowledged deliveries stay settleable after their subscription ends and
// are only requeued when the owning MemoryConsumer is closed.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	tags   atomic.Uint64
}

type memMessage struct {
	body        []byte
	redelivered bool
}

type memQueue struct {
	decl      Declaration
	ready     []memMessage
	wake      chan struct{}
	consumers map[string]*memSubscription
}

type memSubscription struct {
	tag      string
	queue    *memQueue
	opts     ConsumeOptions
	unacked  map[uint64]memMessage
	nextId   uint64
	cancel   context.CancelFunc
	byBroker bool
	released bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: map[string]*memQueue{}}
}

// Declare creates the queue or checks that an existing one has identical parameters
func (b *MemoryBroker) Declare(decl Declaration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[decl.Name]; ok {
		if q.decl != decl {
			return fmt.Errorf("%w: inequivalent arg for queue '%s'", ErrPreconditionFailed, decl.Name)
		}
		return nil
	}

	b.queues[decl.Name] = &memQueue{decl: decl, wake: make(chan struct{}), consumers: map[string]*memSubscription{}}
	return nil
}

// Publish routes body to the named queue. Like the default exchange, a message for a queue
// that does not exist is dropped.
func (b *MemoryBroker) Publish(queue string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		log.Debug().Msgf("Dropping unroutable message for queue '%s'", queue)
		return
	}
	msg := make([]byte, len(body))
	copy(msg, body)
	q.ready = append(q.ready, memMessage{body: msg})
	q.notify()
}

// Len returns the number of ready (not delivered) messages
func (b *MemoryBroker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[queue]; ok {
		return len(q.ready)
	}
	return 0
}

// Delete removes the queue and cancels its consumers
func (b *MemoryBroker) Delete(queue string) {
	b.CancelConsumers(queue)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, queue)
}

// CancelConsumers ends every subscription on the queue from the broker side
func (b *MemoryBroker) CancelConsumers(queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return
	}
	for _, sub := range q.consumers {
		sub.byBroker = true
		sub.cancel()
	}
}

func (b *MemoryBroker) subscribe(ctx context.Context, queue string, opts ConsumeOptions) (<-chan Delivery, *memSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no queue '%s'", ErrQueueNotFound, queue)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memSubscription{
		tag:     fmt.Sprintf("mem-%d", b.tags.Add(1)),
		queue:   q,
		opts:    opts,
		unacked: map[uint64]memMessage{},
		cancel:  cancel,
	}
	q.consumers[sub.tag] = sub

	deliveries := make(chan Delivery)
	go b.deliver(subCtx, q, sub, deliveries)
	return deliveries, sub, nil
}

func (b *MemoryBroker) deliver(ctx context.Context, q *memQueue, sub *memSubscription, out chan<- Delivery) {
	defer close(out)
	defer b.unsubscribe(q, sub)

	for ctx.Err() == nil {
		delivery, id, wake, ok := b.next(q, sub)
		if !ok {
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case out <- delivery:
		case <-ctx.Done():
			// Popped but never handed out, back to the head of the queue unless a release
			// already requeued it
			b.mu.Lock()
			if _, pending := sub.unacked[id]; sub.opts.AutoAck || pending {
				delete(sub.unacked, id)
				q.ready = append([]memMessage{{body: delivery.Body, redelivered: delivery.Redelivered}}, q.ready...)
				q.notify()
			}
			b.mu.Unlock()
			return
		}
	}
}

// next pops the head of the queue for sub. When nothing can be delivered it returns the
// channel that is closed on the next queue change.
func (b *MemoryBroker) next(q *memQueue, sub *memSubscription) (Delivery, uint64, <-chan struct{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.released || len(q.ready) == 0 || (sub.opts.Prefetch > 0 && len(sub.unacked) >= sub.opts.Prefetch) {
		return Delivery{}, 0, q.wake, false
	}

	msg := q.ready[0]
	q.ready = q.ready[1:]

	delivery := Delivery{Body: msg.body, Redelivered: msg.redelivered, ConsumerTag: sub.tag}
	var id uint64
	if !sub.opts.AutoAck {
		sub.nextId++
		id = sub.nextId
		sub.unacked[id] = msg
		delivery.ack = func() error { return b.settle(q, sub, id, false) }
		delivery.reject = func(requeue bool) error { return b.settle(q, sub, id, requeue) }
	}
	return delivery, id, nil, true
}

func (b *MemoryBroker) settle(q *memQueue, sub *memSubscription, id uint64, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg, ok := sub.unacked[id]
	if !ok {
		return fmt.Errorf("unknown delivery %d on consumer %s", id, sub.tag)
	}
	delete(sub.unacked, id)
	if requeue {
		msg.redelivered = true
		q.ready = append([]memMessage{msg}, q.ready...)
	}
	q.notify()
	return nil
}

// unsubscribe ends delivery to sub. Its unacknowledged messages stay with the consumer.
func (b *MemoryBroker) unsubscribe(q *memQueue, sub *memSubscription) {
	b.mu.Lock()
	delete(q.consumers, sub.tag)

	if q.decl.AutoDelete && len(q.consumers) == 0 && b.queues[q.decl.Name] == q {
		delete(b.queues, q.decl.Name)
	}
	byBroker := sub.byBroker
	b.mu.Unlock()

	if byBroker && sub.opts.OnCancel != nil {
		sub.opts.OnCancel(sub.tag)
	}
}

// release requeues every message sub still holds unacknowledged, in delivery order.
// Later settles of those deliveries fail.
func (b *MemoryBroker) release(sub *memSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub.released = true
	if len(sub.unacked) == 0 {
		return
	}

	ids := make([]uint64, 0, len(sub.unacked))
	for id := range sub.unacked {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	requeued := make([]memMessage, 0, len(ids))
	for _, id := range ids {
		msg := sub.unacked[id]
		delete(sub.unacked, id)
		msg.redelivered = true
		requeued = append(requeued, msg)
	}
	sub.queue.ready = append(requeued, sub.queue.ready...)
	sub.queue.notify()
}

func (q *memQueue) notify() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// MemoryProducer implements queue.Producer on top of a MemoryBroker
type MemoryProducer struct {
	broker *MemoryBroker
	queue  string
	closed atomic.Bool
}

func NewMemoryProducer(broker *MemoryBroker, queue string) *MemoryProducer {
	return &MemoryProducer{broker: broker, queue: queue}
}

func (p *MemoryProducer) Declare(ctx context.Context, decl Declaration) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.broker.Declare(decl)
}

func (p *MemoryProducer) Publish(ctx context.Context, body []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.broker.Publish(p.queue, body)
	return nil
}

func (p *MemoryProducer) Close() error {
	p.closed.Store(true)
	return nil
}

// MemoryConsumer implements queue.Consumer on top of a MemoryBroker. It plays the role
// of an AMQP channel: Close requeues whatever its subscriptions left unacknowledged.
type MemoryConsumer struct {
	broker *MemoryBroker
	queue  string

	mu      sync.Mutex
	cancels []context.CancelFunc
	subs    []*memSubscription
	closed  bool
}

func NewMemoryConsumer(broker *MemoryBroker, queue string) *MemoryConsumer {
	return &MemoryConsumer{broker: broker, queue: queue}
}

func (c *MemoryConsumer) Declare(ctx context.Context, decl Declaration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.broker.Declare(decl)
}

func (c *MemoryConsumer) Consume(ctx context.Context, opts ConsumeOptions) (<-chan Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	deliveries, sub, err := c.broker.subscribe(subCtx, c.queue, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	c.cancels = append(c.cancels, cancel)
	c.subs = append(c.subs, sub)
	return deliveries, nil
}

func (c *MemoryConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for _, cancel := range c.cancels {
		cancel()
	}
	for _, sub := range c.subs {
		c.broker.release(sub)
	}
	c.cancels = nil
	c.subs = nil
	return nil
}
