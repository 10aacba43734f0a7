package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/library-catalog/catalog/config"
	"github.com/Astemirdum/library-catalog/catalog/internal/cache"
	"github.com/Astemirdum/library-catalog/catalog/internal/handler"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/catalog/internal/repository"
	"github.com/Astemirdum/library-catalog/catalog/internal/server"
	"github.com/Astemirdum/library-catalog/catalog/internal/service"
	"github.com/Astemirdum/library-catalog/catalog/migrations"
	"github.com/Astemirdum/library-catalog/pkg/auth"
	"github.com/Astemirdum/library-catalog/pkg/circuit_breaker"
	"github.com/Astemirdum/library-catalog/pkg/database"
	"github.com/Astemirdum/library-catalog/pkg/events"
	"github.com/Astemirdum/library-catalog/pkg/kafka"
	"github.com/Astemirdum/library-catalog/pkg/logger"
	"github.com/Astemirdum/library-catalog/pkg/validate"
)

const shutdownTimeout = 5 * time.Second

var errJWTSecret = errors.New("JWT_SECRET is required")

func Run(cfg config.Config) error {
	log := logger.NewLogger(cfg.Log, "catalog")
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.Secret == "" {
		return errJWTSecret
	}
	db, err := database.NewDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return errors.Wrap(err, "db init")
	}
	defer db.Close()
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return errors.Wrap(err, "repo")
	}

	tokens := auth.NewTokenManager(cfg.Auth)
	opts := make([]service.Option, 0, 2)
	if cfg.Cache.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Cache)
		if err != nil {
			return errors.Wrap(err, "redis")
		}
		defer client.Close()
		opts = append(opts, service.WithCache(cache.NewRedis(client, cfg.Cache.TTL, log)))
	}

	publisher, group, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()
	opts = append(opts, service.WithPublisher(publisher))

	svc := service.NewService(repo, tokens, cfg.Lending, log, opts...)
	h := handler.New(svc, tokens, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server start ON: ",
			zap.String("addr",
				net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
		return srv.Run()
	})
	if group != nil {
		g.Go(func() error {
			return kafka.Consume(gctx, group, []string{cfg.Kafka.Topic}, handler.NewConsumer(svc.RecordLoanEvent, log), log)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Debug("Graceful shutdown")

		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(closeCtx); err != nil {
			log.Error("srv.Stop", zap.Error(err))
		}
		if group != nil {
			if err := group.Close(); err != nil {
				log.Error("group.Close", zap.Error(err))
			}
		}
		return nil
	})

	err = g.Wait()
	log.Info("Graceful shutdown finished")
	return err
}

// newPublisher returns the configured event publisher and, for kafka, the
// consumer group that feeds loan statistics.
func newPublisher(cfg config.Config, log *zap.Logger) (events.Publisher, sarama.ConsumerGroup, error) {
	var (
		publisher events.Publisher
		group     sarama.ConsumerGroup
	)
	switch cfg.Events.Broker {
	case events.BrokerNone, "":
		return events.NewNoop(), nil, nil
	case events.BrokerKafka:
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, nil, errors.Wrap(err, "kafka.NewProducer")
		}
		group, err = kafka.NewConsumerGroup(cfg.Kafka)
		if err != nil {
			_ = producer.Close()
			return nil, nil, errors.Wrap(err, "kafka.NewConsumerGroup")
		}
		publisher = events.NewKafkaPublisher(producer, cfg.Kafka.Topic)
	case events.BrokerAMQP:
		p, err := events.NewAMQPPublisher(cfg.AMQP)
		if err != nil {
			return nil, nil, errors.Wrap(err, "amqp")
		}
		publisher = p
	default:
		return nil, nil, errors.Errorf("unknown events broker %q", cfg.Events.Broker)
	}
	log.Info("loan events", zap.String("broker", cfg.Events.Broker))
	return events.WithBreaker(publisher, circuit_breaker.New(cfg.Breaker)), group, nil
}

// Migrate runs a goose command without starting the server.
func Migrate(ctx context.Context, cfg config.Config, command string) error {
	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return database.Migrate(db, cfg.Database.Driver, migrations.MigrationFiles, command)
}

// CreateAdmin bootstraps an administrator account and returns its id.
func CreateAdmin(ctx context.Context, cfg config.Config, name, email, password string) (string, error) {
	req := model.RegisterRequest{Name: name, Email: email, Password: password}
	log := logger.NewLogger(cfg.Log, "catalog")
	if cfg.Auth.Secret == "" {
		return "", errJWTSecret
	}
	req.Normalize()
	if err := validate.NewCustomValidator().Validate(&req); err != nil {
		return "", errors.New(validate.Message(err))
	}
	db, err := database.NewDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return "", errors.Wrap(err, "db init")
	}
	defer db.Close()
	svc, err := newLocalService(db, cfg, log)
	if err != nil {
		return "", err
	}
	resp, err := svc.Register(ctx, req, model.RoleAdmin)
	if err != nil {
		return "", err
	}
	return resp.Account.ID, nil
}

func newLocalService(db *sqlx.DB, cfg config.Config, log *zap.Logger) (*service.Service, error) {
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return nil, errors.Wrap(err, "repo")
	}
	return service.NewService(repo, auth.NewTokenManager(cfg.Auth), cfg.Lending, log), nil
}
