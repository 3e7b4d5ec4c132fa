package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Storage: StorageConfig{
			Backend:                 StorageTypeLocal,
			Local:                   LocalConfig{RootDir: "/var/data"},
			MultipartThresholdBytes: 1 << 23,
			Retry:                   RetryConfig{MaxAttempts: 3, MinBackoffMs: 100, MaxBackoffMs: 2000},
		},
		Files: FilesConfig{
			MaxSizeBytes:     1 << 20,
			AllowedMimeTypes: []string{"image/jpeg"},
		},
		Encryption: EncryptionConfig{Key: strings.Repeat("ab", 32)},
		Cache:      CacheConfig{Backend: "memory", TTLSeconds: 300, MaxEntries: 100},
		Notification: NotificationConfig{
			Kafka:               KafkaConfig{Brokers: "127.0.0.1:9092", Topic: "notifications"},
			DigestPeriodMinutes: 1440,
		},
		Cleanup: CleanupConfig{PeriodMinutes: 720},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "carrier-pigeon" }},
		{"local without root", func(c *Config) { c.Storage.Local.RootDir = "" }},
		{"nas without addr", func(c *Config) { c.Storage.Backend = StorageTypeNAS }},
		{"aws without bucket", func(c *Config) {
			c.Storage.Backend = StorageTypeAWS
			c.Storage.AWS.Endpoint = "s3.example.com"
		}},
		{"gcp without bucket", func(c *Config) { c.Storage.Backend = StorageTypeGCP }},
		{"alibaba without endpoint", func(c *Config) {
			c.Storage.Backend = StorageTypeAlibaba
			c.Storage.Alibaba.Bucket = "b"
		}},
		{"short key", func(c *Config) { c.Encryption.Key = "abcd" }},
		{"non-hex key", func(c *Config) { c.Encryption.Key = strings.Repeat("zz", 32) }},
		{"zero attempts", func(c *Config) { c.Storage.Retry.MaxAttempts = 0 }},
		{"inverted backoff", func(c *Config) {
			c.Storage.Retry.MinBackoffMs = 500
			c.Storage.Retry.MaxBackoffMs = 100
		}},
		{"zero threshold", func(c *Config) { c.Storage.MultipartThresholdBytes = 0 }},
		{"zero max size", func(c *Config) { c.Files.MaxSizeBytes = 0 }},
		{"no mime types", func(c *Config) { c.Files.AllowedMimeTypes = nil }},
		{"no kafka brokers", func(c *Config) { c.Notification.Kafka.Brokers = "" }},
		{"no kafka topic", func(c *Config) { c.Notification.Kafka.Topic = "" }},
		{"zero digest period", func(c *Config) { c.Notification.DigestPeriodMinutes = 0 }},
		{"negative digest period", func(c *Config) { c.Notification.DigestPeriodMinutes = -5 }},
		{"zero cleanup period", func(c *Config) { c.Cleanup.PeriodMinutes = 0 }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"zero ttl", func(c *Config) { c.Cache.TTLSeconds = 0 }},
		{"memory cache unbounded", func(c *Config) { c.Cache.MaxEntries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should reject this config")
			}
		})
	}
}

func TestValidateKeyCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Encryption.Key = strings.Repeat("AB", 32)
	if err := cfg.Validate(); err != nil {
		t.Errorf("uppercase hex key should be accepted: %v", err)
	}
}
