// Package application assembles the service from configuration. Both the
// HTTP server and the CLI open their stores through it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/secmaster/internal/config"
	"github.com/JonMunkholm/secmaster/internal/core"
	"github.com/JonMunkholm/secmaster/internal/snapshot"
	"github.com/JonMunkholm/secmaster/internal/versionstore"
)

// App holds the opened stores and the service built over them.
type App struct {
	Service *core.Service

	store  versionstore.Store
	pool   *pgxpool.Pool
	client *redis.Client
}

// Open connects the version store and the snapshot cache described by cfg
// and builds a core.Service. Close releases both.
func Open(ctx context.Context, cfg *config.Config, opts ...core.Option) (*App, error) {
	app := &App{}

	if err := app.openStore(ctx, cfg); err != nil {
		return nil, err
	}

	client, err := snapshot.Connect(ctx, snapshot.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect snapshot cache: %w", err)
	}
	app.client = client
	slog.Info("connected to snapshot cache", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	app.Service = core.NewService(app.store, snapshot.New(client), cfg.Pipeline, opts...)
	return app, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) error {
	switch strings.ToLower(cfg.VersionStore.Driver) {
	case config.DriverPostgres:
		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		a.pool = pool
		a.store = versionstore.NewPostgres(pool, cfg.VersionStore.Table)

	case config.DriverSQLite:
		store, err := versionstore.OpenSQLite(ctx, cfg.VersionStore.SQLitePath, cfg.VersionStore.Table)
		if err != nil {
			return err
		}
		a.store = store
		slog.Info("opened sqlite version store", "path", cfg.VersionStore.SQLitePath)

	default:
		return fmt.Errorf("unknown version store driver %q", cfg.VersionStore.Driver)
	}
	return nil
}

// openPool parses DATABASE_URL, applies the pool limits and pings.
func openPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(dbCfg.MaxConns)
	poolConfig.MinConns = int32(dbCfg.MinConns)
	poolConfig.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dbCfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(dbCfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// Close releases the stores. It is safe to call on a partly opened App.
func (a *App) Close() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
