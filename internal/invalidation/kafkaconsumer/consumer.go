// Package kafkaconsumer drops distributed cache entries named by invalidation
// messages.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/weathercache/internal/cache"
	obs "github.com/mohammed-shakir/weathercache/internal/core/observability"
	"github.com/mohammed-shakir/weathercache/internal/invalidation"
	mylog "github.com/mohammed-shakir/weathercache/internal/logger"
)

const retryDelay = 2 * time.Second

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  cache.Interface
	zlog   *zerolog.Logger
	seen   *tsDedupe
}

func New(cfg Config, logger *slog.Logger, c cache.Interface) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	zl := mylog.Build(mylog.Config{Level: "info", Component: "kafka_consumer"}, nil)
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		cache:  c,
		zlog:   mylog.FromContext(base, &zl),
		seen:   newTSDedupe(cfg.DedupeSize),
	}
}

// Start consumes until ctx is cancelled. Consume errors are logged and retried.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: missing cache")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if ctx.Err() != nil {
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		}
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.zlog.Error().Err(err).
				Strs("brokers", c.cfg.Brokers).
				Str("topic", c.cfg.Topic).
				Msg("kafka consumer error")
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
		}
	}
}

// ProcessOne handles a single message. A returned error leaves the offset
// unmarked so the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.logError(ctx, msg, "decode", err)
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		// malformed messages are skipped, not retried
		obs.IncKafkaConsumerError("invalid")
		obs.ObserveInvalidation(err)
		c.logError(ctx, msg, "invalid", err)
		return nil
	}

	key := ev.CacheKey()
	if c.seen.stale(key, ev.TS) {
		mylog.FromContext(ctx, c.zlog).Debug().
			Str("key", key).
			Time("ts", ev.TS).
			Msg("skipping replayed invalidation")
		return nil
	}
	if err := c.cache.Del(ctx, key); err != nil {
		obs.IncKafkaConsumerError("cache_del")
		obs.ObserveInvalidation(err)
		c.logError(ctx, msg, "cache_del", err)
		return fmt.Errorf("cache del: %w", err)
	}

	c.seen.applied(key, ev.TS)
	obs.ObserveInvalidation(nil)
	mylog.FromContext(mylog.WithLocation(ctx, ev.Location), c.zlog).Info().
		Str("event", "invalidation").
		Str("key", key).
		Str("source", ev.Source).
		Msg("invalidated cache entry")
	return nil
}

func (c *Consumer) logError(ctx context.Context, msg *sarama.ConsumerMessage, kind string, err error) {
	mylog.FromContext(ctx, c.zlog).Error().Err(err).
		Str("kind", kind).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("kafka error")
}
