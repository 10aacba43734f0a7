package events

import (
	"context"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	BrokerNone  = "none"
	BrokerKafka = "kafka"
	BrokerAMQP  = "amqp"
)

// Publisher delivers a JSON encoded payload under a partitioning key.
type Publisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
	Close() error
}

func Encode(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

type noop struct{}

// NewNoop drops everything.
func NewNoop() Publisher { return noop{} }

func (noop) Publish(context.Context, string, interface{}) error { return nil }
func (noop) Close() error                                       { return nil }
