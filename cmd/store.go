package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/instabids/bidcard-cli/internal/bidcard"
	"github.com/instabids/bidcard-cli/internal/model"
	"github.com/instabids/bidcard-cli/internal/resilience"
	"github.com/instabids/bidcard-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "bidcards.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initService(st store.Store) (*bidcard.Service, error) {
	opts := []bidcard.Option{}
	if cfg.Schema.Path != "" {
		schema, err := model.LoadSchema(cfg.Schema.Path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bidcard.WithSchema(schema))
	}
	if cfg.Discovery.WebhookURL != "" {
		retry := resilience.DefaultRetryConfig()
		if cfg.Discovery.MaxRetries > 0 {
			retry.MaxAttempts = cfg.Discovery.MaxRetries
		}
		notifier := bidcard.NewDiscoveryNotifier(
			cfg.Discovery.WebhookURL,
			time.Duration(cfg.Discovery.TimeoutSecs)*time.Second,
			retry,
		)
		opts = append(opts, bidcard.WithNotifier(notifier))
	}
	return bidcard.NewService(st, opts...), nil
}
