package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

var (
	ErrRequeueUnsupported = errors.New("kafka transport can not requeue a record")
)

// KafkaProducer implements queue.Producer with a single partition Kafka topic named after the queue.
// Topic durability is broker configuration, declaration flags are ignored.
type KafkaProducer struct {
	kafka *kgo.Client
	topic string
}

func NewKafkaProducer(cfg Config) (*KafkaProducer, error) {
	kafka, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.DefaultProduceTopic(cfg.QueueName),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, err
	}

	return &KafkaProducer{kafka: kafka, topic: cfg.QueueName}, nil
}

func (p *KafkaProducer) Declare(ctx context.Context, decl Declaration) error {
	return pingKafka(ctx, p.kafka, decl)
}

func (p *KafkaProducer) Publish(ctx context.Context, body []byte) error {
	// Partition 0 keeps the topic FIFO
	results := p.kafka.ProduceSync(ctx, &kgo.Record{Topic: p.topic, Partition: 0, Value: body})
	err := results.FirstErr()
	if err != nil {
		logResultsErrors(results)
		return err
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	p.kafka.Close()
	return nil
}

func logResultsErrors(results kgo.ProduceResults) {
	var errStrings []string
	for _, r := range results {
		if r.Err != nil {
			errStrings = append(errStrings, r.Err.Error())
		}
	}
	log.Error().Msg(strings.Join(errStrings, "; "))
}

func pingKafka(ctx context.Context, kafka *kgo.Client, decl Declaration) error {
	if decl.Durable || decl.Exclusive || decl.AutoDelete {
		log.Debug().Msgf("Kafka topic '%s' ignores queue flags %+v", decl.Name, decl)
	}
	if err := kafka.Ping(ctx); err != nil {
		return fmt.Errorf("unable to reach kafka for topic '%s': %w", decl.Name, err)
	}
	return nil
}

// KafkaConsumer implements queue.Consumer. Auto-ack maps to autocommit, otherwise the
// offset of a record is committed when it is acked (or rejected without requeue).
type KafkaConsumer struct {
	cfg Config

	mu      sync.Mutex
	clients []*kgo.Client
}

func NewKafkaConsumer(cfg Config) (*KafkaConsumer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	return &KafkaConsumer{cfg: cfg}, nil
}

func (c *KafkaConsumer) Declare(ctx context.Context, decl Declaration) error {
	kafka, err := kgo.NewClient(kgo.SeedBrokers(c.cfg.KafkaBrokers...))
	if err != nil {
		return err
	}
	defer kafka.Close()

	return pingKafka(ctx, kafka, decl)
}

func (c *KafkaConsumer) Consume(ctx context.Context, opts ConsumeOptions) (<-chan Delivery, error) {
	kopts := []kgo.Opt{
		kgo.SeedBrokers(c.cfg.KafkaBrokers...),
		kgo.ConsumeTopics(c.cfg.QueueName),
		kgo.ConsumerGroup(c.cfg.KafkaGroup),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AllowAutoTopicCreation(),
	}
	if !opts.AutoAck {
		kopts = append(kopts, kgo.DisableAutoCommit())
	}

	kafka, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.clients = append(c.clients, kafka)
	c.mu.Unlock()

	max := opts.Prefetch
	if max <= 0 {
		max = -1
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)

		for {
			fetches := kafka.PollRecords(ctx, max)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				return
			}
			fetches.EachError(func(topic string, partition int32, err error) {
				log.Error().Err(err).Msgf("Unable to fetch %s[%d]", topic, partition)
			})

			records := fetches.Records()
			for _, record := range records {
				select {
				case out <- fromRecord(kafka, record, opts.AutoAck):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, kafka := range c.clients {
		kafka.Close()
	}
	c.clients = nil
	return nil
}

func fromRecord(kafka *kgo.Client, record *kgo.Record, autoAck bool) Delivery {
	delivery := Delivery{Body: record.Value, ConsumerTag: fmt.Sprintf("%s[%d]", record.Topic, record.Partition)}
	if !autoAck {
		commit := func() error { return kafka.CommitRecords(context.Background(), record) }
		delivery.ack = commit
		delivery.reject = func(requeue bool) error {
			if requeue {
				return ErrRequeueUnsupported
			}
			return commit()
		}
	}
	return delivery
}
