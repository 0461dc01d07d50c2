package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/svetsrebrev/orderq/cmd/common"
	"github.com/svetsrebrev/orderq/internal/consumer"
	"github.com/svetsrebrev/orderq/internal/queue"
	"github.com/svetsrebrev/orderq/internal/utils"
)

func main() {
	common.SetupLogging()
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	cfg := consumer.LoadConfig()
	result := common.RunUntilCancelled(ctx, "Order consumer", cfg.RestartInterval, func(ctx context.Context) error {
		return runService(ctx, cfg)
	})

	err := common.WaitForExit(cancelFunc, result)
	if common.IsFailure(err) {
		log.Error().Msgf("Order consumer stopped: %s", common.ConcatErrMessages(err))
		os.Exit(1)
	}
}

func runService(ctx context.Context, cfg *consumer.Config) error {
	subscriber, err := queue.NewConsumer(cfg.Queue, nil)
	if err != nil {
		utils.LogIfNotCancelled(err, "Unable to connect to broker")
		return err
	}
	defer subscriber.Close()

	processor := consumer.NewProcessor(consumer.DefaultSteps, cfg.ReportTotals, os.Stdout)
	srv := consumer.NewConsumer(subscriber, processor, cfg, os.Stdout)

	if cfg.StatusAddress != "" {
		statusCtx, cancelStatus := context.WithCancel(ctx)
		defer cancelStatus()
		go func() {
			err := consumer.NewStatusServer(srv, cfg).Run(statusCtx)
			utils.LogIfNotCancelled(err, "Status server failed")
		}()
	}

	return srv.Run(ctx)
}
