package producer

import (
	"strings"
	"time"

	"github.com/svetsrebrev/orderq/internal/order"
	"github.com/svetsrebrev/orderq/internal/queue"
	"github.com/svetsrebrev/orderq/internal/utils"
)

type Config struct {
	// Broker and queue
	Queue queue.Config

	// Number of orders published per run
	OrderCount int

	// Products orders are drawn from
	ProductCatalog []string

	// Pause between two publishes
	PublishInterval time.Duration

	// Random seed for order contents, 0 picks a time based seed
	Seed int64
}

func LoadConfig() *Config {
	return &Config{
		Queue: queue.LoadConfig(queue.TransportAmqp),

		OrderCount:      utils.GetEnvOrDefaultInt("ORDER_COUNT", 10),
		ProductCatalog:  utils.GetEnvOrDefaultArray("PRODUCT_CATALOG", strings.Join(order.DefaultCatalog, ","), ","),
		PublishInterval: utils.GetEnvOrDefaultDuration("PUBLISH_INTERVAL", 500*time.Millisecond),
		Seed:            utils.GetEnvOrDefaultInt64("ORDER_SEED", 0),
	}
}
