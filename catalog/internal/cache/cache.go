package cache

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-catalog/catalog/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const keyPrefix = "catalog:book:"

type Config struct {
	// Addr empty disables caching.
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD" json:"-"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"CACHE_TTL" default:"30s"`
}

// BookCache never fails the caller; misses and errors look the same.
type BookCache interface {
	Get(ctx context.Context, id string) (model.Book, bool)
	Set(ctx context.Context, book model.Book)
	Invalidate(ctx context.Context, ids ...string)
}

func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return client, nil
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *zap.Logger) *redisCache {
	return &redisCache{client: client, ttl: ttl, log: log.Named("cache")}
}

func (c *redisCache) Get(ctx context.Context, id string) (model.Book, bool) {
	data, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("get", zap.String("id", id), zap.Error(err))
		}
		return model.Book{}, false
	}
	var book model.Book
	if err := json.Unmarshal(data, &book); err != nil {
		c.log.Warn("decode", zap.String("id", id), zap.Error(err))
		return model.Book{}, false
	}
	return book, true
}

func (c *redisCache) Set(ctx context.Context, book model.Book) {
	data, err := json.Marshal(book)
	if err != nil {
		c.log.Warn("encode", zap.String("id", book.ID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, keyPrefix+book.ID, data, c.ttl).Err(); err != nil {
		c.log.Warn("set", zap.String("id", book.ID), zap.Error(err))
	}
}

func (c *redisCache) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, keyPrefix+id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("invalidate", zap.Strings("ids", ids), zap.Error(err))
	}
}

type noop struct{}

func NewNoop() BookCache { return noop{} }

func (noop) Get(context.Context, string) (model.Book, bool) { return model.Book{}, false }
func (noop) Set(context.Context, model.Book)                {}
func (noop) Invalidate(context.Context, ...string)          {}
