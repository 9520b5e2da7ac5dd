package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/config"
	"github.com/shubhsaxena/search-insights/internal/models"
)

type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicEvents,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxRetries,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}

	logger.Info("kafka producer created", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.TopicEvents))

	return &Producer{
		writer: w,
		logger: logger,
	}
}

func (p *Producer) PublishEvent(ctx context.Context, env *models.EventEnvelope) error {
	return p.PublishBatch(ctx, []*models.EventEnvelope{env})
}

// PublishBatch validates every envelope before writing any of them.
func (p *Producer) PublishBatch(ctx context.Context, envs []*models.EventEnvelope) error {
	now := time.Now()
	msgs := make([]kafka.Message, len(envs))
	for i, env := range envs {
		msg, err := envelopeMessage(env, now)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		msgs[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publishing batch of %d events: %w", len(envs), err)
	}

	return nil
}

func envelopeMessage(env *models.EventEnvelope, now time.Time) (kafka.Message, error) {
	if err := env.Validate(); err != nil {
		return kafka.Message{}, fmt.Errorf("invalid event: %w", err)
	}
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = now.UTC()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(env.Key()),
		Value: data,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event_kind", Value: []byte(env.Kind)},
		},
	}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
