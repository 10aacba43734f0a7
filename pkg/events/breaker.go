package events

import (
	"context"

	"github.com/Astemirdum/library-catalog/pkg/circuit_breaker"
)

type breakerPublisher struct {
	next Publisher
	cb   circuit_breaker.CircuitBreaker
}

// WithBreaker stops calling a failing broker until the breaker recovers.
func WithBreaker(next Publisher, cb circuit_breaker.CircuitBreaker) Publisher {
	return &breakerPublisher{next: next, cb: cb}
}

func (p *breakerPublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	return p.cb.Call(func() error {
		return p.next.Publish(ctx, key, payload)
	})
}

func (p *breakerPublisher) Close() error {
	return p.next.Close()
}
