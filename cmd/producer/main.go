package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/svetsrebrev/orderq/cmd/common"
	"github.com/svetsrebrev/orderq/internal/producer"
	"github.com/svetsrebrev/orderq/internal/queue"
	"github.com/svetsrebrev/orderq/internal/utils"
)

func main() {
	common.SetupLogging()
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	result := common.RunUntilCancelled(ctx, "Order producer", 0, runService)
	err := common.WaitForExit(cancelFunc, result)
	if common.IsFailure(err) {
		log.Error().Msgf("Order producer stopped: %s", common.ConcatErrMessages(err))
		os.Exit(1)
	}
}

func runService(ctx context.Context) error {
	cfg := producer.LoadConfig()

	publisher, err := queue.NewProducer(cfg.Queue, nil)
	if err != nil {
		utils.LogIfNotCancelled(err, "Unable to connect to broker")
		return err
	}
	defer publisher.Close()

	srv := producer.NewProducer(publisher, cfg, os.Stdout)
	return srv.Run(ctx)
}
