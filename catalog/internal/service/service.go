package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Astemirdum/library-catalog/catalog/internal/cache"
	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/catalog/internal/repository"
	"github.com/Astemirdum/library-catalog/pkg/auth"
	"github.com/Astemirdum/library-catalog/pkg/events"
	"github.com/Astemirdum/library-catalog/pkg/retry"
)

type Config struct {
	MaxAttempts int           `envconfig:"LENDING_MAX_ATTEMPTS" default:"3"`
	TxTimeout   time.Duration `envconfig:"LENDING_TX_TIMEOUT" default:"5s"`
	BcryptCost  int           `envconfig:"BCRYPT_COST" default:"12"`
}

type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

type Service struct {
	repo      repository.Repository
	tokens    TokenIssuer
	cache     cache.BookCache
	publisher events.Publisher
	cfg       Config
	now       func() time.Time
	log       *zap.Logger
}

type Option func(*Service)

func WithCache(c cache.BookCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.Repository, tokens TokenIssuer, cfg Config, log *zap.Logger, opts ...Option) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	s := &Service{
		repo:      repo,
		tokens:    tokens,
		cache:     cache.NewNoop(),
		publisher: events.NewNoop(),
		cfg:       cfg,
		now:       time.Now,
		log:       log.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock is truncated to what both SQL backends store.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// runTx executes fn in one transaction under the lending deadline and retries
// it from scratch on version conflicts. Exhausted retries become errs.ErrConflict.
func (s *Service) runTx(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Tx) error) error {
	err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
		defer cancel()
		return s.repo.WithinTx(txCtx, func(tx repository.Tx) error {
			return fn(txCtx, tx)
		})
	},
		retry.WithMaxAttempts(s.cfg.MaxAttempts),
		retry.WithRetryable(repository.IsRetryable),
		retry.WithOnRetry(func(attempt int, err error) {
			s.log.Debug("retry", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
	if repository.IsRetryable(err) {
		s.log.Warn("conflict", zap.String("op", op), zap.Error(err))
		return errs.ErrConflict
	}
	return err
}

// publish is best effort and runs after commit.
func (s *Service) publish(ctx context.Context, event model.LoanEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event.BookID, event); err != nil {
		s.log.Warn("publish loan event", zap.String("id", event.ID), zap.String("type", string(event.Type)), zap.Error(err))
	}
}
