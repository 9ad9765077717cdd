// Package kafka consumes change notifications relayed through a queue. The
// relay verifies signatures before publishing, so messages are trusted.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/promosync/internal/config"
	"github.com/smallbiznis/promosync/internal/webhook/domain"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const retryDelay = time.Second

type Ingester interface {
	Ingest(ctx context.Context, env domain.Envelope) (domain.Result, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader MessageReader
	ingest Ingester
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(reader MessageReader, ingest Ingester, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		ingest: ingest,
		log:    log.Named("webhook.kafka"),
	}
}

// Start runs the fetch loop until Stop is called.
func (c *Consumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.reader.Close()
	c.wg.Wait()
	return err
}

func (c *Consumer) run(ctx context.Context) {
	c.log.Info("kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("kafka consumer stopped")
				return
			}
			c.log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		if !c.Handle(ctx, msg) {
			// leave the offset uncommitted so the message is redelivered
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Handle processes one message and reports whether its offset may be
// committed. Malformed messages are committed so they do not block the partition.
func (c *Consumer) Handle(parent context.Context, msg kafka.Message) bool {
	var env domain.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.log.Error("malformed kafka envelope", zap.Int64("offset", msg.Offset), zap.Error(err))
		return true
	}

	carrier := headerCarrier(msg.Headers)
	ctx := otel.GetTextMapPropagator().Extract(parent, &carrier)

	res, err := c.ingest.Ingest(ctx, env)
	switch {
	case err == nil:
		c.log.Debug("kafka event ingested", zap.String("event_id", env.EventID), zap.String("outcome", res.Outcome))
		return true
	case errors.Is(err, domain.ErrInvalidShop), errors.Is(err, domain.ErrInvalidEventID),
		errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrUnsupportedTopic):
		c.log.Warn("kafka event rejected", zap.String("event_id", env.EventID), zap.String("topic", env.Topic), zap.Error(err))
		return true
	}
	c.log.Error("kafka event failed", zap.String("event_id", env.EventID), zap.String("topic", env.Topic), zap.Error(err))
	return false
}

type headerCarrier []kafka.Header

func (h *headerCarrier) Get(key string) string {
	for _, header := range *h {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}

func (h *headerCarrier) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*h))
	for _, header := range *h {
		keys = append(keys, header.Key)
	}
	return keys
}

// Register starts a consumer when brokers are configured.
func Register(lc fx.Lifecycle, cfg config.Config, ingest Ingester, log *zap.Logger) {
	if !cfg.KafkaEnabled() {
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	consumer := NewConsumer(reader, ingest, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			consumer.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			return consumer.Stop()
		},
	})
}
