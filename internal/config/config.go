// Package config loads memcore's runtime configuration: which storage and
// sync transport backends to use and how they're reached.
package config

import "time"

// GraphStoreConfig selects and parameterizes the Graph Store backend.
type GraphStoreConfig struct {
	Backend      string        `yaml:"backend"` // "memory" (default) or "postgres"
	PostgresDSN  string        `yaml:"postgres_dsn,omitempty"`
	SaveDebounce time.Duration `yaml:"save_debounce,omitempty"`
}

// S3BackupConfig configures the optional cold-storage snapshot archive.
type S3BackupConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Bucket   string        `yaml:"bucket,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty"`
	Region   string        `yaml:"region,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
}

// SyncConfig selects and parameterizes the cross-tab Sync transport.
type SyncConfig struct {
	ChannelName  string        `yaml:"channel_name"`
	Transport    string        `yaml:"transport"` // "memory" (default), "redis", or "kafka"
	RedisAddr    string        `yaml:"redis_addr,omitempty"`
	KafkaBrokers []string      `yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string        `yaml:"kafka_topic,omitempty"`
	HeartbeatTTL time.Duration `yaml:"heartbeat_ttl,omitempty"`
	ElectionWait time.Duration `yaml:"election_wait,omitempty"`
	LeaderDeadAfter time.Duration `yaml:"leader_dead_after,omitempty"`
}

// ConversationStoreConfig bounds the conversation store.
type ConversationStoreConfig struct {
	MaxItems int `yaml:"max_items"`
	MaxBytes int `yaml:"max_bytes"`
}

// WebhookConfig parameterizes the dispatcher's HTTP client and retry policy.
type WebhookConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	JobsPerPump    int           `yaml:"jobs_per_pump"`
}

// Config is the root configuration document.
type Config struct {
	LogLevel     string                   `yaml:"log_level"`
	GraphStore   GraphStoreConfig         `yaml:"graph_store"`
	S3Backup     S3BackupConfig           `yaml:"s3_backup"`
	Sync         SyncConfig               `yaml:"sync"`
	Conversation ConversationStoreConfig  `yaml:"conversation"`
	Webhook      WebhookConfig            `yaml:"webhook"`
}

// Default returns the configuration used when no env vars or YAML file
// override it: in-memory graph store, in-memory sync transport, no S3
// backup. This is what makes the module runnable with zero external
// services, the parity point with the browser's always-available local
// storage.
func Default() Config {
	return Config{
		LogLevel: "info",
		GraphStore: GraphStoreConfig{
			Backend:      "memory",
			SaveDebounce: 500 * time.Millisecond,
		},
		S3Backup: S3BackupConfig{
			Enabled:  false,
			Interval: 10 * time.Minute,
		},
		Sync: SyncConfig{
			ChannelName:     "memcore-sync",
			Transport:       "memory",
			HeartbeatTTL:    5 * time.Second,
			ElectionWait:    200 * time.Millisecond,
			LeaderDeadAfter: 15 * time.Second,
		},
		Conversation: ConversationStoreConfig{
			MaxItems: 80,
			MaxBytes: 8 * 1024 * 1024,
		},
		Webhook: WebhookConfig{
			RequestTimeout: 30 * time.Second,
			MaxAttempts:    5,
			MaxBackoff:     10 * time.Minute,
			JobsPerPump:    3,
		},
	}
}
