package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Runs against a real broker only when AMQP_TEST_HOST is set, e.g. AMQP_TEST_HOST=localhost
func amqpTestConfig(t *testing.T) Config {
	host := os.Getenv("AMQP_TEST_HOST")
	if host == "" {
		t.Skip("AMQP_TEST_HOST not set, skipping broker integration test")
	}
	return Config{
		Transport:      TransportAmqp,
		BrokerHost:     host,
		BrokerPort:     5672,
		BrokerUser:     "guest",
		BrokerPassword: "guest",
		BrokerVhost:    "/",
		QueueName:      "order_queue_test_" + uuid.New().String(),
	}
}

func TestAmqpDeclarePrecondition(t *testing.T) {
	cfg := amqpTestConfig(t)
	ctx := context.Background()

	producer, err := NewAmqpProducer(cfg)
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	defer producer.Close()
	defer producer.session.ch.QueueDelete(cfg.QueueName, false, false, false)

	consumer, err := NewAmqpConsumer(cfg)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer consumer.Close()

	if err := producer.Declare(ctx, DefaultDeclaration(cfg.QueueName)); err != nil {
		t.Fatalf("first declare: %v", err)
	}
	if err := consumer.Declare(ctx, DefaultDeclaration(cfg.QueueName)); err != nil {
		t.Fatalf("second declare: %v", err)
	}

	durable := DefaultDeclaration(cfg.QueueName)
	durable.Durable = true
	err = consumer.Declare(ctx, durable)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}
}

func TestAmqpPublishConsumeOrder(t *testing.T) {
	cfg := amqpTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer, err := NewAmqpProducer(cfg)
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	defer producer.Close()
	defer producer.session.ch.QueueDelete(cfg.QueueName, false, false, false)

	if err := producer.Declare(ctx, DefaultDeclaration(cfg.QueueName)); err != nil {
		t.Fatalf("declare: %v", err)
	}
	for i := 1; i <= 10; i++ {
		if err := producer.Publish(ctx, []byte(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	consumer, err := NewAmqpConsumer(cfg)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer consumer.Close()

	deliveries, err := consumer.Consume(ctx, ConsumeOptions{AutoAck: true})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	for i := 1; i <= 10; i++ {
		d := receive(t, deliveries)
		if want := fmt.Sprintf("msg-%d", i); string(d.Body) != want {
			t.Fatalf("got %s, want %s", d.Body, want)
		}
	}
}

func TestForwardAmqpChannelShutdownIsNotACancel(t *testing.T) {
	cases := map[string]func(msgs chan amqp.Delivery, cancelled chan string){
		"cancel notifications first": func(msgs chan amqp.Delivery, cancelled chan string) {
			close(cancelled)
			close(msgs)
		},
		"deliveries first": func(msgs chan amqp.Delivery, cancelled chan string) {
			close(msgs)
			close(cancelled)
		},
	}

	for name, shutdown := range cases {
		t.Run(name, func(t *testing.T) {
			msgs := make(chan amqp.Delivery)
			cancelled := make(chan string, 1)
			var notified []string
			opts := ConsumeOptions{AutoAck: true, OnCancel: func(tag string) { notified = append(notified, tag) }}

			out := make(chan Delivery)
			go forwardAmqp(context.Background(), msgs, cancelled, opts, "order-consumer-test", func() {}, out)
			shutdown(msgs, cancelled)
			waitClosed(t, out)

			if len(notified) != 0 {
				t.Fatalf("connection loss reported as a broker cancel: %v", notified)
			}
		})
	}
}

func TestForwardAmqpBrokerCancel(t *testing.T) {
	msgs := make(chan amqp.Delivery)
	cancelled := make(chan string, 1)
	var notified []string
	opts := ConsumeOptions{AutoAck: true, OnCancel: func(tag string) { notified = append(notified, tag) }}

	out := make(chan Delivery)
	cancelled <- "order-consumer-test"
	go forwardAmqp(context.Background(), msgs, cancelled, opts, "order-consumer-test", func() {}, out)
	waitClosed(t, out)

	if len(notified) != 1 || notified[0] != "order-consumer-test" {
		t.Fatalf("expected one cancel for the consumer tag, got %v", notified)
	}
}

func TestForwardAmqpStopsOnContextDone(t *testing.T) {
	msgs := make(chan amqp.Delivery, 1)
	msgs <- amqp.Delivery{Body: []byte("order"), ConsumerTag: "order-consumer-test"}
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	out := make(chan Delivery)
	go forwardAmqp(ctx, msgs, make(chan string), ConsumeOptions{AutoAck: true}, "order-consumer-test", func() { close(stopped) }, out)

	d := receive(t, out)
	if string(d.Body) != "order" || d.ConsumerTag != "order-consumer-test" {
		t.Fatalf("unexpected delivery %+v", d)
	}
	if err := d.Ack(); err != nil {
		t.Fatalf("ack in auto-ack mode should be a no-op, got %v", err)
	}

	cancel()
	waitClosed(t, out)
	select {
	case <-stopped:
	default:
		t.Fatalf("subscription was not cancelled on the broker")
	}
}
