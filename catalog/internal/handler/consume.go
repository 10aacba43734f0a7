package handler

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/pkg/events"
)

type recordEvent func(ctx context.Context, event model.LoanEvent) error

type Consumer struct {
	recordEventHandler recordEvent
	log                *zap.Logger
}

func NewConsumer(record recordEvent, log *zap.Logger) *Consumer {
	return &Consumer{
		recordEventHandler: record,
		log:                log.Named("consumer"),
	}
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			consumer.handle(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle never blocks the partition: undecodable messages are dropped and
// storage failures are logged.
func (consumer *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	var event model.LoanEvent
	if err := events.Decode(message.Value, &event); err != nil || event.ID == "" {
		consumer.log.Error("decode loan event", zap.Error(err), zap.ByteString("value", message.Value))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := consumer.recordEventHandler(ctx, event); err != nil {
		consumer.log.Error("consumer.recordEventHandler", zap.String("id", event.ID), zap.Error(err))
		return
	}
	consumer.log.Debug("loan event stored",
		zap.String("id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Time("timestamp", message.Timestamp),
		zap.String("topic", message.Topic))
}
