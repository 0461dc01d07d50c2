package queue

import (
	"github.com/svetsrebrev/orderq/internal/utils"
)

const (
	TransportAmqp   = "amqp"
	TransportKafka  = "kafka"
	TransportMemory = "memory"
)

type Config struct {
	// One of amqp, kafka, memory
	Transport string

	// AMQP broker address and credentials
	BrokerHost     string
	BrokerPort     int
	BrokerUser     string
	BrokerPassword string
	BrokerVhost    string

	// Kafka brokers list, used by the kafka transport
	KafkaBrokers []string

	// Kafka consumer group
	KafkaGroup string

	// Queue (or topic) shared by producer and consumer
	QueueName string
}

// TODO: return error if loading configuration fails. For now just use defaults
func LoadConfig(defaultTransport string) Config {
	return Config{
		Transport: utils.GetEnvOrDefaultStr("TRANSPORT", defaultTransport),

		BrokerHost:     utils.GetEnvOrDefaultStr("BROKER_HOST", "localhost"),
		BrokerPort:     utils.GetEnvOrDefaultInt("BROKER_PORT", 5672),
		BrokerUser:     utils.GetEnvOrDefaultStr("BROKER_USER", "guest"),
		BrokerPassword: utils.GetEnvOrDefaultStr("BROKER_PASSWORD", "guest"),
		BrokerVhost:    utils.GetEnvOrDefaultStr("BROKER_VHOST", "/"),

		KafkaBrokers: utils.GetEnvOrDefaultArray("KAFKA_BROKERS", "localhost:9092", ","),
		KafkaGroup:   utils.GetEnvOrDefaultStr("KAFKA_GROUP", "order-consumers"),

		QueueName: utils.GetEnvOrDefaultStr("QUEUE_NAME", "order_queue"),
	}
}
