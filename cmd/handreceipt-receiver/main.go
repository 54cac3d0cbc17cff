package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"handreceipt/internal/logging"
	"handreceipt/internal/receiver"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := receiver.LoadConfig(envFilePath())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(loggerOptions(cfg))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := receiver.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open custody store", logging.Error(err))
		log.Fatalf("open custody store: %v", err)
	}
	defer store.Close()

	if err := receiver.NewServer(cfg, store, logger).Run(ctx); err != nil {
		logger.Error("receiver stopped with error", logging.Error(err))
		log.Fatalf("run receiver: %v", err)
	}
	logger.Info("handreceipt-receiver shutting down")
}
