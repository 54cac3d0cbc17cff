package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageSQLite, StorageFile:
		return nil
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (use %q or %q)", c.Storage.Backend, StorageSQLite, StorageFile)
	}
}

func (c *Config) validateRemote() error {
	if c.Remote.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("remote.base_url is required. Set HANDRECEIPT_REMOTE_URL env var or edit %s (create with 'handreceipt config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("remote.base_url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("remote.base_url must include a host")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MaxRetries < 1 {
		return errors.New("sync.max_retries must be >= 1")
	}
	if c.Sync.RetryCooldownSeconds < 0 {
		return errors.New("sync.retry_cooldown_seconds must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"remote.timeout_seconds":      c.Remote.TimeoutSeconds,
		"sync.probe_interval_seconds": c.Sync.ProbeIntervalSeconds,
		"sync.probe_timeout_seconds":  c.Sync.ProbeTimeoutSeconds,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
