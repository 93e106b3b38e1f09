package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"boutique/backend/internal/domain"
)

// Publisher announces committed stock movements to downstream consumers.
type Publisher interface {
	PublishMovements(ctx context.Context, movements []domain.StockMovement) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishMovements(_ context.Context, _ []domain.StockMovement) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, logger: logger.Named("events")}
}

// PublishMovements keys each message by ledger row so one row's history
// lands on one partition in order.
func (p *KafkaPublisher) PublishMovements(ctx context.Context, movements []domain.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(movements))
	for _, m := range movements {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode movement %s: %w", m.ID, err)
		}
		key := domain.StockKey{VariantID: m.VariantID, Store: m.Store, Size: m.Size}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key.String()),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "reason", Value: []byte(m.Reason)},
			},
			Time: m.CreatedAt,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish stock movements failed", zap.Int("count", len(msgs)), zap.Error(err))
		return err
	}
	p.logger.Debug("published stock movements", zap.Int("count", len(msgs)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
