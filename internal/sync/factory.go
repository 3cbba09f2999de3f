package sync

import (
	"fmt"

	"memcore/internal/config"
)

// NewTransport constructs a Transport from configuration, grounded on the
// same backend-selection idiom as graphstore.NewBackend.
func NewTransport(cfg config.SyncConfig) (Transport, error) {
	channel := cfg.ChannelName
	if channel == "" {
		channel = "memcore-sync"
	}
	switch cfg.Transport {
	case "", "memory":
		return NewMemTransport(channel), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("sync: redis transport requires redis_addr")
		}
		return NewRedisTransport(cfg.RedisAddr, channel)
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("sync: kafka transport requires kafka_brokers")
		}
		topic := cfg.KafkaTopic
		if topic == "" {
			topic = channel
		}
		return NewKafkaTransport(cfg.KafkaBrokers, topic, "memcore-sync-"+topic), nil
	default:
		return nil, fmt.Errorf("sync: unsupported transport %q", cfg.Transport)
	}
}
