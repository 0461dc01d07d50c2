package queue

import (
	"fmt"
)

// NewProducer builds the producer of the configured transport. broker backs the memory
// transport, a fresh one is used when nil.
func NewProducer(cfg Config, broker *MemoryBroker) (Producer, error) {
	switch cfg.Transport {
	case TransportAmqp, "":
		return NewAmqpProducer(cfg)
	case TransportKafka:
		return NewKafkaProducer(cfg)
	case TransportMemory:
		if broker == nil {
			broker = NewMemoryBroker()
		}
		return NewMemoryProducer(broker, cfg.QueueName), nil
	default:
		return nil, fmt.Errorf("unknown transport '%s'", cfg.Transport)
	}
}

// NewConsumer builds the consumer of the configured transport, see NewProducer
func NewConsumer(cfg Config, broker *MemoryBroker) (Consumer, error) {
	switch cfg.Transport {
	case TransportAmqp, "":
		return NewAmqpConsumer(cfg)
	case TransportKafka:
		return NewKafkaConsumer(cfg)
	case TransportMemory:
		if broker == nil {
			broker = NewMemoryBroker()
		}
		return NewMemoryConsumer(broker, cfg.QueueName), nil
	default:
		return nil, fmt.Errorf("unknown transport '%s'", cfg.Transport)
	}
}
