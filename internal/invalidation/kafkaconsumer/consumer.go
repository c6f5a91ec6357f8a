// Package kafkaconsumer listens for release announcements and retires the
// cached manifest when a new release appears.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	obs "github.com/mohammed-shakir/overture-extract/internal/core/observability"
	"github.com/mohammed-shakir/overture-extract/internal/invalidation"
	mylog "github.com/mohammed-shakir/overture-extract/internal/logger"
)

const source = "kafka"

// ManifestCache is implemented by *manifest.Resolver.
type ManifestCache interface {
	Cached() (*model.Manifest, bool)
	Invalidate()
}

// ReleasePurger drops cached artifacts of a retired release.
type ReleasePurger interface {
	PurgeRelease(ctx context.Context, version string) (int, error)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	zlog   *zerolog.Logger
	cache  ManifestCache
	purger ReleasePurger
	seen   *lru.Cache[string, struct{}]
}

// New wires a consumer. purger and zl may be nil.
func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, mc ManifestCache, purger ReleasePurger) (*Consumer, error) {
	if mc == nil {
		return nil, errors.New("kafkaconsumer: missing manifest cache")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	size := cfg.DedupeSize
	if size <= 0 {
		size = 128
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	return &Consumer{cfg: cfg, logger: logger, zlog: zl, cache: mc, purger: purger, seen: seen}, nil
}

// Start consumes release events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
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

	handler := &groupHandler{process: c.ProcessOne, logger: c.logger}

	c.logger.Info("release consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("release consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				obs.IncKafkaConsumerError("consume")
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies one release event. Undecodable events are logged and
// skipped so they do not block the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	ctx = mylog.WithComponent(ctx, "release_consumer")

	ev, err := invalidation.Decode(msg.Value)
	if err != nil {
		obs.IncKafkaConsumerError("decode")
		obs.ObserveInvalidation(source, "rejected")
		mylog.FromContext(ctx, c.zlog).Error().Err(err).
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}
	ctx = mylog.WithRelease(ctx, ev.ReleaseVersion)

	if _, dup := c.seen.Get(ev.ReleaseVersion); dup {
		obs.ObserveInvalidation(source, "duplicate")
		c.logger.DebugContext(ctx, "release already handled", "offset", msg.Offset)
		return nil
	}

	var previous string
	if m, ok := c.cache.Cached(); ok {
		previous = m.Version
	}
	if previous == ev.ReleaseVersion {
		c.seen.Add(ev.ReleaseVersion, struct{}{})
		obs.ObserveInvalidation(source, "current")
		return nil
	}

	c.cache.Invalidate()
	c.seen.Add(ev.ReleaseVersion, struct{}{})
	obs.ObserveInvalidation(source, "invalidated")

	purged := 0
	if c.purger != nil && previous != "" {
		n, err := c.purger.PurgeRelease(ctx, previous)
		if err != nil {
			obs.IncKafkaConsumerError("purge")
			c.logger.WarnContext(ctx, "purge cached artifacts failed", "previous", previous, "err", err)
		}
		purged = n
	}

	mylog.FromContext(ctx, c.zlog).Info().
		Str("event", "invalidation").
		Str("previous", previous).
		Int("purged", purged).
		Dur("took", time.Since(start)).
		Msg("manifest invalidated")
	return nil
}
