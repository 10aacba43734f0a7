package events

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) Publisher {
	return &kafkaPublisher{producer: producer, topic: topic}
}

func (p *kafkaPublisher) Publish(_ context.Context, key string, payload interface{}) error {
	body, err := Encode(payload)
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	})
	return errors.Wrap(err, "kafka send")
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}
