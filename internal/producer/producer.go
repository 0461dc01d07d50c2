package producer

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/svetsrebrev/orderq/internal/order"
	"github.com/svetsrebrev/orderq/internal/queue"
	"github.com/svetsrebrev/orderq/internal/utils"
)

// Producer generates synthetic orders and publishes them to the queue, once per run
type Producer struct {
	producer queue.Producer
	cfg      *Config
	out      io.Writer
}

func NewProducer(producer queue.Producer, cfg *Config, out io.Writer) *Producer {
	if out == nil {
		out = io.Discard
	}
	return &Producer{producer: producer, cfg: cfg, out: out}
}

// Run declares the queue and publishes cfg.OrderCount orders, pausing cfg.PublishInterval
// between publishes. The first error aborts the run.
func (p *Producer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	generator, err := order.NewGenerator(p.cfg.ProductCatalog, p.cfg.Seed)
	if err != nil {
		return err
	}

	err = p.producer.Declare(ctx, queue.DefaultDeclaration(p.cfg.Queue.QueueName))
	if err != nil {
		utils.LogIfNotCancelled(err, "Unable to declare queue")
		return err
	}

	for i := 0; i < p.cfg.OrderCount; i++ {
		if i > 0 {
			if err := utils.SleepContext(ctx, p.cfg.PublishInterval); err != nil {
				return err
			}
		}

		o := generator.Next()
		payload := o.Payload()
		err = p.producer.Publish(ctx, payload)
		if err != nil {
			utils.LogIfNotCancelled(err, fmt.Sprintf("Unable to publish order %d", o.OrderID))
			return fmt.Errorf("order %d: %w", o.OrderID, err)
		}

		fmt.Fprintf(p.out, " [✓] Order sent: %s\n", payload)
		log.Debug().Int("order_id", o.OrderID).Str("queue", p.cfg.Queue.QueueName).Msg("Order published")
	}

	fmt.Fprintf(p.out, "\n [✓] All orders were sent successfully!\n")
	return nil
}
