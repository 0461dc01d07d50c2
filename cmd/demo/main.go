package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/svetsrebrev/orderq/cmd/common"
	"github.com/svetsrebrev/orderq/internal/consumer"
	"github.com/svetsrebrev/orderq/internal/producer"
	"github.com/svetsrebrev/orderq/internal/queue"
	"github.com/svetsrebrev/orderq/internal/utils"
)

// Runs producer and consumer in one process, over the in-memory broker unless TRANSPORT says otherwise
func main() {
	common.SetupLogging()
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	result := common.RunUntilCancelled(ctx, "Order demo", 0, runDemo)
	err := common.WaitForExit(cancelFunc, result)
	if common.IsFailure(err) {
		log.Error().Msgf("Order demo stopped: %s", common.ConcatErrMessages(err))
		os.Exit(1)
	}
}

func runDemo(ctx context.Context) error {
	prodCfg := producer.LoadConfig()
	consCfg := consumer.LoadConfig()
	queueCfg := queue.LoadConfig(queue.TransportMemory)
	prodCfg.Queue, consCfg.Queue = queueCfg, queueCfg

	broker := queue.NewMemoryBroker()

	subscriber, err := queue.NewConsumer(queueCfg, broker)
	if err != nil {
		utils.LogIfNotCancelled(err, "Unable to create consumer")
		return err
	}
	defer subscriber.Close()

	publisher, err := queue.NewProducer(queueCfg, broker)
	if err != nil {
		utils.LogIfNotCancelled(err, "Unable to create producer")
		return err
	}
	defer publisher.Close()

	processor := consumer.NewProcessor(consumer.DefaultSteps, consCfg.ReportTotals, os.Stdout)
	orders := consumer.NewConsumer(subscriber, processor, consCfg, os.Stdout)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- orders.Run(consumerCtx)
	}()

	err = producer.NewProducer(publisher, prodCfg, os.Stdout).Run(ctx)
	if err != nil {
		stopConsumer()
		<-consumerDone
		return err
	}

	// Let the consumer drain what was published
	for {
		stats := orders.Stats()
		if stats.Succeeded+stats.Failed >= uint64(prodCfg.OrderCount) || stats.Cancelled {
			break
		}
		select {
		case err := <-consumerDone:
			return err
		default:
		}
		if err := utils.SleepContext(ctx, 100*time.Millisecond); err != nil {
			stopConsumer()
			<-consumerDone
			return err
		}
	}

	stopConsumer()
	if err := <-consumerDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Interface("stats", orders.Stats()).Msg("Demo finished")
	return nil
}
