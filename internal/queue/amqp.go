package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// amqpSession owns one connection and one channel to the broker
type amqpSession struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func dialAmqp(cfg Config) (*amqpSession, error) {
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     cfg.BrokerHost,
		Port:     cfg.BrokerPort,
		Username: cfg.BrokerUser,
		Password: cfg.BrokerPassword,
		Vhost:    cfg.BrokerVhost,
	}

	conn, err := amqp.Dial(uri.String())
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s:%d: %w", cfg.BrokerHost, cfg.BrokerPort, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to open channel: %w", err)
	}

	return &amqpSession{conn: conn, ch: ch, queue: cfg.QueueName}, nil
}

func (s *amqpSession) declare(decl Declaration) error {
	_, err := s.ch.QueueDeclare(decl.Name, decl.Durable, decl.AutoDelete, decl.Exclusive, false, nil)
	if err != nil {
		return fmt.Errorf("unable to declare queue '%s': %w", decl.Name, asQueueError(err))
	}
	return nil
}

func (s *amqpSession) close() error {
	var errs []error
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// asQueueError joins broker reply codes with the matching package errors
func asQueueError(err error) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.PreconditionFailed:
			return errors.Join(err, ErrPreconditionFailed)
		case amqp.NotFound:
			return errors.Join(err, ErrQueueNotFound)
		}
	}
	return err
}

// AmqpProducer implements queue.Producer, publishing on the default exchange with the
// queue name as routing key
type AmqpProducer struct {
	session *amqpSession
}

func NewAmqpProducer(cfg Config) (*AmqpProducer, error) {
	session, err := dialAmqp(cfg)
	if err != nil {
		return nil, err
	}
	return &AmqpProducer{session: session}, nil
}

func (p *AmqpProducer) Declare(ctx context.Context, decl Declaration) error {
	return p.session.declare(decl)
}

func (p *AmqpProducer) Publish(ctx context.Context, body []byte) error {
	err := p.session.ch.PublishWithContext(ctx, "", p.session.queue, false, false, amqp.Publishing{Body: body})
	if err != nil {
		return fmt.Errorf("unable to publish to '%s': %w", p.session.queue, err)
	}
	return nil
}

func (p *AmqpProducer) Close() error {
	return p.session.close()
}

// AmqpConsumer implements queue.Consumer
type AmqpConsumer struct {
	session *amqpSession
}

func NewAmqpConsumer(cfg Config) (*AmqpConsumer, error) {
	session, err := dialAmqp(cfg)
	if err != nil {
		return nil, err
	}
	return &AmqpConsumer{session: session}, nil
}

func (c *AmqpConsumer) Declare(ctx context.Context, decl Declaration) error {
	return c.session.declare(decl)
}

func (c *AmqpConsumer) Consume(ctx context.Context, opts ConsumeOptions) (<-chan Delivery, error) {
	ch := c.session.ch
	if opts.Prefetch > 0 {
		if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("unable to set prefetch %d: %w", opts.Prefetch, err)
		}
	}

	tag := "order-consumer-" + uuid.New().String()
	cancelled := ch.NotifyCancel(make(chan string, 1))

	msgs, err := ch.Consume(c.session.queue, tag, opts.AutoAck, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to consume from '%s': %w", c.session.queue, asQueueError(err))
	}

	out := make(chan Delivery)
	go forwardAmqp(ctx, msgs, cancelled, opts, tag, func() { c.stop(tag) }, out)
	return out, nil
}

// forwardAmqp converts library deliveries until the subscription ends, then closes out.
// stop cancels the subscription on the broker when ctx is done.
func forwardAmqp(ctx context.Context, msgs <-chan amqp.Delivery, cancelled <-chan string, opts ConsumeOptions, tag string, stop func(), out chan<- Delivery) {
	defer close(out)

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				// The library signals a broker cancel before closing the deliveries, while
				// a channel shutdown closes the cancel notifications without a tag
				select {
				case cancelledTag, ok := <-cancelled:
					if ok {
						notifyCancel(opts, cancelledTag)
						return
					}
				default:
				}
				if ctx.Err() == nil {
					log.Warn().Msgf("Deliveries for consumer %s stopped", tag)
				}
				return
			}

			select {
			case out <- fromAmqp(d, opts.AutoAck):
			case <-ctx.Done():
				stop()
				return
			}
		case cancelledTag, ok := <-cancelled:
			if !ok {
				// Channel shutdown, msgs is closed as well
				cancelled = nil
				continue
			}
			notifyCancel(opts, cancelledTag)
			return
		case <-ctx.Done():
			stop()
			return
		}
	}
}

func (c *AmqpConsumer) stop(tag string) {
	if err := c.session.ch.Cancel(tag, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
		log.Warn().Err(err).Msgf("Unable to cancel consumer %s", tag)
	}
}

func (c *AmqpConsumer) Close() error {
	return c.session.close()
}

func notifyCancel(opts ConsumeOptions, tag string) {
	if opts.OnCancel != nil {
		opts.OnCancel(tag)
	}
}

func fromAmqp(d amqp.Delivery, autoAck bool) Delivery {
	delivery := Delivery{Body: d.Body, Redelivered: d.Redelivered, ConsumerTag: d.ConsumerTag}
	if !autoAck {
		delivery.ack = func() error { return d.Ack(false) }
		delivery.reject = func(requeue bool) error { return d.Reject(requeue) }
	}
	return delivery
}
