package consumer

import (
	"time"

	"github.com/svetsrebrev/orderq/internal/queue"
	"github.com/svetsrebrev/orderq/internal/utils"
)

type Config struct {
	// Broker and queue
	Queue queue.Config

	// Broker drops the message as soon as it is delivered. When false the message is acked
	// after successful processing and dropped (rejected without requeue) on failure.
	AutoAck bool

	// Max unacknowledged deliveries, 0 keeps the broker default
	Prefetch int

	// Orders processed in parallel. 1 processes deliveries one by one in queue order.
	Concurrency int

	// Parse each order and print its total after processing
	ReportTotals bool

	// host:port of the HTTP status endpoints, disabled when empty
	StatusAddress string

	// Delay before restarting after a failure, 0 exits instead
	RestartInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Queue: queue.LoadConfig(queue.TransportAmqp),

		AutoAck:     utils.GetEnvOrDefaultBool("AUTO_ACK", true),
		Prefetch:    utils.GetEnvOrDefaultInt("PREFETCH", 0),
		Concurrency: utils.GetEnvOrDefaultInt("CONCURRENCY", 1),

		ReportTotals:  utils.GetEnvOrDefaultBool("REPORT_TOTALS", false),
		StatusAddress: utils.GetEnvOrDefaultStr("STATUS_ADDRESS", ""),

		RestartInterval: utils.GetEnvOrDefaultDuration("RESTART_INTERVAL", 0),
	}
}
