package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"refkb/internal/notify"
	"refkb/internal/notify/cache"
	"refkb/internal/notify/kafka"
	"refkb/internal/platform/config"
	"refkb/internal/platform/database"
	"refkb/internal/platform/redis"
	"refkb/internal/storage/sqlstore"
	"refkb/internal/suggestion/metrics"
	"refkb/internal/suggestion/ports"
	"refkb/internal/suggestion/service"
	"refkb/pkg/platform/circuit"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	db      *database.DB
	store   *sqlstore.Store
	service *service.Service
	redis   *redis.Client
	kafka   *kgo.Client
}

type appOptions struct {
	notifiers bool
	metrics   *metrics.Metrics
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{
		db:    db,
		store: sqlstore.New(db, sqlstore.WithTimeout(cfg.Database.TxTimeout)),
	}

	var notifiers []ports.Notifier
	if opts.notifiers {
		if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
			a.Close()
			return nil, err
		}
		if a.redis != nil {
			notifiers = append(notifiers, cache.New(a.redis, cfg.Redis.KeyPrefix))
		}
		if len(cfg.Kafka.Brokers) > 0 {
			if a.kafka, err = kafka.Dial(ctx, cfg.Kafka); err != nil {
				a.Close()
				return nil, err
			}
			notifiers = append(notifiers, kafka.NewPublisher(a.kafka, cfg.Kafka.Topic))
		}
	}

	guarded := make([]ports.Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		breaker := circuit.New(n.Name(),
			circuit.WithFailureThreshold(cfg.Notify.FailureThreshold),
			circuit.WithCooldown(cfg.Notify.Cooldown),
		)
		guarded = append(guarded, notify.Guard(n, breaker, logger))
	}

	a.service = service.New(a.store,
		service.WithLogger(logger),
		service.WithMetrics(opts.metrics),
		service.WithNotifiers(guarded...),
		service.WithNotifyTimeout(cfg.Notify.Timeout),
	)
	return a, nil
}

// Close releases every connection the app opened.
func (a *app) Close() error {
	var errs []error
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
