package receiver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadConfig.
const (
	EnvAddr            = "RECEIVER_ADDR"
	EnvDatabaseURL     = "RECEIVER_DATABASE_URL"
	EnvAPIToken        = "RECEIVER_API_TOKEN"
	EnvShutdownSeconds = "RECEIVER_SHUTDOWN_SECONDS"
	EnvLogLevel        = "RECEIVER_LOG_LEVEL"
	EnvLogFormat       = "RECEIVER_LOG_FORMAT"
)

const defaultAddr = ":8787"

// Config holds receiver settings.
type Config struct {
	Addr            string
	DatabaseURL     string
	APIToken        string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// LoadConfig reads settings from the environment. Values in envFile fill in
// anything the environment leaves unset; a missing envFile is not an error.
func LoadConfig(envFile string) (Config, error) {
	fileValues := map[string]string{}
	if path := strings.TrimSpace(envFile); path != "" {
		values, err := godotenv.Read(path)
		switch {
		case err == nil:
			fileValues = values
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read env file %q: %w", path, err)
		}
	}
	lookup := func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(fileValues[key])
	}

	cfg := Config{
		Addr:            lookup(EnvAddr),
		DatabaseURL:     lookup(EnvDatabaseURL),
		APIToken:        lookup(EnvAPIToken),
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        lookup(EnvLogLevel),
		LogFormat:       lookup(EnvLogFormat),
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if raw := lookup(EnvShutdownSeconds); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("%s must be a positive integer, got %q", EnvShutdownSeconds, raw)
		}
		cfg.ShutdownTimeout = time.Duration(seconds) * time.Second
	}
	return cfg, nil
}
