package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/requestid"
)

// KafkaReader is the part of *kafka.Reader the consumer uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the event topic reader.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS"`
	Topic   string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"notifykit.events"`
	GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"notifykit"`
}

// Enabled reports whether brokers are configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// NewKafkaReader builds a consumer-group reader for cfg.
func NewKafkaReader(cfg KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: 30 * time.Second,
		StartOffset:    kafka.LastOffset,
		MaxBytes:       10e6,
	})
}

// KafkaConsumer emits every Event read from a topic. Each message is
// committed after it was processed; undecodable and invalid messages are
// logged and committed so they do not block the partition.
type KafkaConsumer struct {
	reader  KafkaReader
	emitter Emitter
	logger  *slog.Logger
}

func NewKafkaConsumer(reader KafkaReader, em Emitter, log *slog.Logger) *KafkaConsumer {
	if log == nil {
		log = logger.Discard()
	}
	return &KafkaConsumer{reader: reader, emitter: em, logger: log.With(logger.Component("ingest.kafka"))}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("failed to close kafka reader", logger.Error(err))
		}
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !c.handle(requestid.WithContext(ctx, requestid.Ensure(header(msg, requestid.Header))), msg) {
			c.logger.Info("stopping kafka consumer before commit", slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle reports whether msg may be committed. Only a closed digest
// scheduler keeps the offset, so the event is redelivered after restart.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) bool {
	attrs := []slog.Attr{slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset)}

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "dropping undecodable event", append(attrs, logger.Error(err))...)
		return true
	}
	attrs = append(attrs, logger.EventKey(ev.EventKey), logger.UserID(ev.Recipient.ID))

	res, err := Process(ctx, c.emitter, ev)
	switch {
	case err == nil:
		c.logger.LogAttrs(ctx, slog.LevelDebug, "event processed", append(attrs, slog.Int("channels", len(res.Channels)))...)
	case errors.Is(err, digest.ErrSchedulerClosed):
		c.logger.LogAttrs(ctx, slog.LevelWarn, "event left uncommitted, digest scheduler closed", attrs...)
		return false
	case errors.Is(err, dispatch.ErrAllChannelsFailed):
		c.logger.LogAttrs(ctx, slog.LevelWarn, "event delivery failed on every channel", append(attrs, logger.Error(err))...)
	default:
		c.logger.LogAttrs(ctx, slog.LevelError, "event rejected", append(attrs, logger.Error(err))...)
	}
	return true
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
