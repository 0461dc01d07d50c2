package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
)

// In-process Kafka cluster with a single partition topic named after the queue
func kafkaTestConfig(t *testing.T) Config {
	t.Helper()
	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(1, testQueue))
	if err != nil {
		t.Fatalf("kafka cluster: %v", err)
	}
	t.Cleanup(cluster.Close)

	return Config{
		Transport:    TransportKafka,
		KafkaBrokers: cluster.ListenAddrs(),
		KafkaGroup:   "order-consumers-test",
		QueueName:    testQueue,
	}
}

// Group joins take a while, so deliveries get a longer deadline than on the memory broker
func receiveKafka(t *testing.T, deliveries <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-deliveries:
		if !ok {
			t.Fatalf("deliveries closed unexpectedly")
		}
		return d
	case <-time.After(20 * time.Second):
		t.Fatalf("timed out waiting for a kafka record")
	}
	return Delivery{}
}

func publishKafka(t *testing.T, cfg Config, bodies ...string) {
	t.Helper()
	producer, err := NewKafkaProducer(cfg)
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	defer producer.Close()

	ctx := context.Background()
	if err := producer.Declare(ctx, DefaultDeclaration(cfg.QueueName)); err != nil {
		t.Fatalf("declare: %v", err)
	}
	for _, body := range bodies {
		if err := producer.Publish(ctx, []byte(body)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
}

func TestKafkaPublishConsumeOrder(t *testing.T) {
	cfg := kafkaTestConfig(t)
	bodies := make([]string, 10)
	for i := range bodies {
		bodies[i] = fmt.Sprintf("msg-%d", i+1)
	}
	publishKafka(t, cfg, bodies...)

	consumer, err := NewKafkaConsumer(cfg)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumer.Declare(ctx, DefaultDeclaration(cfg.QueueName)); err != nil {
		t.Fatalf("declare: %v", err)
	}
	deliveries, err := consumer.Consume(ctx, ConsumeOptions{AutoAck: true})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	for _, want := range bodies {
		d := receiveKafka(t, deliveries)
		if string(d.Body) != want {
			t.Fatalf("got %s, want %s", d.Body, want)
		}
		if d.ConsumerTag != testQueue+"[0]" {
			t.Fatalf("expected partition 0, got %s", d.ConsumerTag)
		}
	}
}

func TestKafkaManualAckCommits(t *testing.T) {
	cfg := kafkaTestConfig(t)
	publishKafka(t, cfg, "first", "second", "third")

	consumer, err := NewKafkaConsumer(cfg)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := consumer.Consume(ctx, ConsumeOptions{})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	first := receiveKafka(t, deliveries)
	if err := first.Ack(); err != nil {
		t.Fatalf("ack: %v", err)
	}
	second := receiveKafka(t, deliveries)
	if err := second.Reject(true); !errors.Is(err, ErrRequeueUnsupported) {
		t.Fatalf("expected ErrRequeueUnsupported, got %v", err)
	}
	if err := second.Reject(false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	cancel()
	consumer.Close()

	// A new member of the group resumes after the committed offsets
	next, err := NewKafkaConsumer(cfg)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer next.Close()
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	resumed, err := next.Consume(ctx2, ConsumeOptions{})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if d := receiveKafka(t, resumed); string(d.Body) != "third" {
		t.Fatalf("expected to resume at 'third', got %s", d.Body)
	}
}

func TestKafkaAutoAckDeliveriesIgnoreSettle(t *testing.T) {
	d := fromRecord(nil, &kgo.Record{Topic: testQueue, Partition: 0, Value: []byte("order")}, true)
	if err := d.Ack(); err != nil {
		t.Fatalf("ack in auto-ack mode should be a no-op, got %v", err)
	}
	if err := d.Reject(true); err != nil {
		t.Fatalf("reject in auto-ack mode should be a no-op, got %v", err)
	}
}

func TestKafkaConsumerNeedsBrokers(t *testing.T) {
	if _, err := NewKafkaConsumer(Config{QueueName: testQueue}); err == nil {
		t.Fatalf("expected an error without brokers")
	}
}
