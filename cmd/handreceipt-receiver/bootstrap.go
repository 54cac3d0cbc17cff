package main

import (
	"os"
	"strings"

	"handreceipt/internal/logging"
	"handreceipt/internal/receiver"
)

const envFileVar = "RECEIVER_ENV_FILE"

func envFilePath() string {
	if path := strings.TrimSpace(os.Getenv(envFileVar)); path != "" {
		return path
	}
	return ".env"
}

func loggerOptions(cfg receiver.Config) logging.Options {
	return logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}
}
