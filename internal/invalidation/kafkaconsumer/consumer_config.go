package kafkaconsumer

import (
	"time"

	"github.com/mohammed-shakir/weathercache/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

// FromKafka derives the consumer settings from the service config.
func FromKafka(k config.KafkaCfg) Config {
	return Config{
		Brokers:          k.Brokers,
		Topic:            k.InvalidationTopic,
		GroupID:          k.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		DedupeSize:       defaultDedupeSize,
	}
}
