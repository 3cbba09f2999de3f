package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds a Config starting from Default(), overlaying an optional YAML
// file (yamlPath, ignored if empty or missing), then overlaying environment
// variables (after loading a .env file into the process environment, if
// present). Env vars take precedence over the YAML file, with the real OS
// environment winning over anything a local .env file set.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if strings.TrimSpace(yamlPath) != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MEMCORE_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_GRAPH_STORE_BACKEND")); v != "" {
		cfg.GraphStore.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_GRAPH_STORE_POSTGRES_DSN")); v != "" {
		cfg.GraphStore.PostgresDSN = v
	}
	if v := durationEnv("MEMCORE_GRAPH_STORE_SAVE_DEBOUNCE"); v != 0 {
		cfg.GraphStore.SaveDebounce = v
	}
	if v := boolEnv("MEMCORE_S3_BACKUP_ENABLED"); v != nil {
		cfg.S3Backup.Enabled = *v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_S3_BUCKET")); v != "" {
		cfg.S3Backup.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_S3_PREFIX")); v != "" {
		cfg.S3Backup.Prefix = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_S3_REGION")); v != "" {
		cfg.S3Backup.Region = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_SYNC_TRANSPORT")); v != "" {
		cfg.Sync.Transport = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_SYNC_CHANNEL_NAME")); v != "" {
		cfg.Sync.ChannelName = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_SYNC_REDIS_ADDR")); v != "" {
		cfg.Sync.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_SYNC_KAFKA_BROKERS")); v != "" {
		cfg.Sync.KafkaBrokers = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("MEMCORE_SYNC_KAFKA_TOPIC")); v != "" {
		cfg.Sync.KafkaTopic = v
	}
	if v := intEnv("MEMCORE_CONVERSATION_MAX_ITEMS"); v != 0 {
		cfg.Conversation.MaxItems = v
	}
	if v := intEnv("MEMCORE_CONVERSATION_MAX_BYTES"); v != 0 {
		cfg.Conversation.MaxBytes = v
	}
	if v := intEnv("MEMCORE_WEBHOOK_MAX_ATTEMPTS"); v != 0 {
		cfg.Webhook.MaxAttempts = v
	}
	if v := intEnv("MEMCORE_WEBHOOK_JOBS_PER_PUMP"); v != 0 {
		cfg.Webhook.JobsPerPump = v
	}
	if v := durationEnv("MEMCORE_WEBHOOK_REQUEST_TIMEOUT"); v != 0 {
		cfg.Webhook.RequestTimeout = v
	}
}

func durationEnv(name string) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func intEnv(name string) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func boolEnv(name string) *bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	b := strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	return &b
}
