package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/svetsrebrev/orderq/internal/queue"
	"github.com/svetsrebrev/orderq/internal/utils"
)

var (
	ErrDeliveriesStopped = errors.New("deliveries stopped unexpectedly")
)

// Consumer receives orders from the queue and runs the handler on each of them
type Consumer struct {
	consumer queue.Consumer
	handler  Handler
	cfg      *Config
	out      io.Writer

	received  atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	requeued  atomic.Uint64
	cancelled atomic.Bool
}

type Stats struct {
	Received  uint64 `json:"received"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Requeued  uint64 `json:"requeued"`
	Cancelled bool   `json:"cancelled"`
}

func NewConsumer(consumer queue.Consumer, handler Handler, cfg *Config, out io.Writer) *Consumer {
	if out == nil {
		out = io.Discard
	}
	return &Consumer{consumer: consumer, handler: handler, cfg: cfg, out: &lockedWriter{w: out}}
}

func (c *Consumer) Stats() Stats {
	return Stats{
		Received:  c.received.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
		Dropped:   c.dropped.Load(),
		Requeued:  c.requeued.Load(),
		Cancelled: c.cancelled.Load(),
	}
}

// Run subscribes to the queue and processes deliveries until ctx is done. A broker side
// cancel is only logged, Run then idles until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	err := c.consumer.Declare(ctx, queue.DefaultDeclaration(c.cfg.Queue.QueueName))
	if err != nil {
		utils.LogIfNotCancelled(err, "Unable to declare queue")
		return err
	}

	fmt.Fprintf(c.out, " [*] Waiting for orders. To exit press CTRL+C\n")
	fmt.Fprintf(c.out, " [*] Processing orders...\n\n")

	deliveries, err := c.consumer.Consume(ctx, queue.ConsumeOptions{
		AutoAck:  c.cfg.AutoAck,
		Prefetch: c.cfg.Prefetch,
		OnCancel: c.onCancel,
	})
	if err != nil {
		utils.LogIfNotCancelled(err, "Unable to subscribe to queue")
		return err
	}

	c.run(ctx, deliveries)

	if c.cancelled.Load() {
		<-ctx.Done()
		return errors.Join(ctx.Err(), queue.ErrSubscriptionCancelled)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrDeliveriesStopped
}

func (c *Consumer) onCancel(consumerTag string) {
	c.cancelled.Store(true)
	log.Warn().Str("consumer_tag", consumerTag).Msg("Subscription cancelled by broker")
	fmt.Fprintf(c.out, "Consumer cancelled: %s\n", consumerTag)
}

// run starts cfg.Concurrency processing loops over the deliveries and waits for them to drain
func (c *Consumer) run(ctx context.Context, deliveries <-chan queue.Delivery) {
	concurrency := c.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	processorWg := &sync.WaitGroup{}
	processorWg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go c.processLoop(ctx, deliveries, processorWg)
	}
	processorWg.Wait()
}

func (c *Consumer) processLoop(ctx context.Context, deliveries <-chan queue.Delivery, wg *sync.WaitGroup) {
	defer wg.Done()

	for delivery := range deliveries {
		outcome := c.handle(ctx, &delivery)
		c.record(outcome)
	}
}

func (c *Consumer) handle(ctx context.Context, delivery *queue.Delivery) Outcome {
	payload := string(delivery.Body)
	if !utf8.ValidString(payload) {
		payload = strings.ToValidUTF8(payload, string(utf8.RuneError))
	}
	c.received.Add(1)

	fmt.Fprintf(c.out, " [→] Order received: %s\n", payload)
	err := c.handler.Handle(ctx, payload)
	if err != nil {
		fmt.Fprintf(c.out, " [✗] Error processing order: %v\n\n", err)
	} else {
		fmt.Fprintf(c.out, " [✓] Order processed successfully\n\n")
	}

	return Outcome{
		Payload:     payload,
		Redelivered: delivery.Redelivered,
		Err:         err,
		Disposition: c.settle(ctx, delivery, err),
	}
}

func (c *Consumer) settle(ctx context.Context, delivery *queue.Delivery, processErr error) Disposition {
	if c.cfg.AutoAck {
		return AutoAcked
	}

	if processErr == nil {
		if err := delivery.Ack(); err != nil {
			log.Error().Err(err).Msg("Unable to ack delivery")
			return Unsettled
		}
		return Acked
	}

	// Interrupted orders never finished processing, only real failures are dropped
	if ctx.Err() != nil {
		if err := delivery.Reject(true); err != nil {
			log.Error().Err(err).Msg("Unable to requeue delivery")
			return Unsettled
		}
		return Requeued
	}

	if err := delivery.Reject(false); err != nil {
		log.Error().Err(err).Msg("Unable to reject delivery")
		return Unsettled
	}
	return Dropped
}

func (c *Consumer) record(outcome Outcome) {
	if outcome.Succeeded() {
		c.succeeded.Add(1)
	} else {
		c.failed.Add(1)
	}
	switch outcome.Disposition {
	case Dropped:
		c.dropped.Add(1)
	case Requeued:
		c.requeued.Add(1)
	}

	event := log.Debug()
	if !outcome.Succeeded() {
		event = log.Error().Err(outcome.Err)
	}
	event.
		Str("payload", outcome.Payload).
		Bool("redelivered", outcome.Redelivered).
		Str("disposition", outcome.Disposition.String()).
		Msg("Order handled")
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
