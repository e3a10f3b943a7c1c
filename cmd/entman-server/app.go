package main

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stuvusIT/entman/internal/config"
	"github.com/stuvusIT/entman/internal/db"
	"github.com/stuvusIT/entman/internal/entman/callback"
	"github.com/stuvusIT/entman/internal/entman/identity"
	"github.com/stuvusIT/entman/internal/entman/service"
	"github.com/stuvusIT/entman/internal/entman/store"
	"github.com/stuvusIT/entman/internal/entman/store/memory"
	"github.com/stuvusIT/entman/internal/entman/store/redisstore"
	"github.com/stuvusIT/entman/internal/entman/store/sqlstore"
	"github.com/stuvusIT/entman/internal/metrics"
)

// app holds everything serve needs plus what has to be released on exit.
type app struct {
	access  *service.AccessService
	history *service.HistoryService
	metrics *metrics.Metrics

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type sqlHandle struct {
	db      *sql.DB
	dialect db.Dialect
	worker  *db.Worker
}

// build wires the collaborators selected by cfg. On error everything
// opened so far is released.
func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var (
		sqlite, postgres *sqlHandle
		rdb              *redis.Client
	)
	openSQL := func(d db.Dialect) (*sqlHandle, error) {
		var (
			conn *sql.DB
			err  error
		)
		if d == db.SQLite {
			conn, err = db.OpenSQLite(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		} else {
			conn, err = db.OpenPostgres(ctx, cfg.PostgresDSN)
		}
		if err != nil {
			return nil, err
		}
		h := &sqlHandle{db: conn, dialect: d, worker: db.NewWorker(conn)}
		a.closers = append(a.closers, func() {
			h.worker.Close()
			_ = conn.Close()
		})
		logger.Info("database opened", zap.String("dialect", string(d)))
		return h, nil
	}
	needSQL := func(d db.Dialect) (*sqlHandle, error) {
		var err error
		switch {
		case d == db.SQLite && sqlite == nil:
			sqlite, err = openSQL(d)
		case d == db.Postgres && postgres == nil:
			postgres, err = openSQL(d)
		}
		if d == db.SQLite {
			return sqlite, err
		}
		return postgres, err
	}
	needRedis := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		c := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rdb = c
		a.closers = append(a.closers, func() { _ = c.Close() })
		return c, nil
	}

	// History
	var history store.HistoryStore
	switch cfg.History.Backend {
	case "sqlite", "postgres":
		h, err := needSQL(db.Dialect(cfg.History.Backend))
		if err != nil {
			return nil, err
		}
		history = sqlstore.NewHistoryStore(h.db, h.dialect, h.worker)
	case "redis":
		c, err := needRedis()
		if err != nil {
			return nil, err
		}
		history = redisstore.NewHistoryStoreWithClient(c, cfg.RedisKey)
	default:
		history = memory.NewHistoryStore()
	}

	// Verifier
	static, err := cfg.StaticTokens()
	if err != nil {
		return nil, err
	}
	if cfg.Verifier.TokensFile != "" {
		fromFile, err := identity.LoadTokensFile(cfg.Verifier.TokensFile)
		if err != nil {
			return nil, err
		}
		maps.Copy(static, fromFile)
	}

	var verifier identity.Verifier
	switch cfg.Verifier.Kind {
	case "hashed":
		tokens, err := buildTokenStore(ctx, cfg, static, needSQL)
		if err != nil {
			return nil, err
		}
		verifier = identity.NewHashedVerifier(tokens, logger)
	case "oidc":
		verifier, err = identity.NewOIDCVerifier(ctx, cfg.Verifier.OIDCIssuer, cfg.Verifier.OIDCClientID)
		if err != nil {
			return nil, err
		}
	case "expr":
		verifier, err = identity.NewExprVerifier(cfg.Verifier.Expr)
		if err != nil {
			return nil, err
		}
	default:
		verifier = identity.NewStaticVerifier(identity.StaticPolicy{AllowAll: cfg.Verifier.AllowAll, Tokens: static})
	}
	if cfg.Verifier.CacheTTLS > 0 {
		cache := identity.NewCachingVerifier(verifier,
			time.Duration(cfg.Verifier.CacheTTLS)*time.Second, cfg.Verifier.CacheMax, logger)
		a.closers = append(a.closers, cache.Wait)
		verifier = cache
	}

	// Callback
	var cb callback.Callback = callback.Nop{}
	switch cfg.Callback.Kind {
	case "webhook":
		cb = callback.NewWebhook(cfg.Callback.URL, time.Duration(cfg.Callback.TimeoutMS)*time.Millisecond)
	case "redis":
		c, err := needRedis()
		if err != nil {
			return nil, err
		}
		cb = callback.NewRedisPublish(c, cfg.Callback.Channel, cfg.Callback.Message)
	}

	logger.Info("gate configured",
		zap.String("history", cfg.History.Backend),
		zap.String("verifier", cfg.Verifier.Kind),
		zap.String("callback", cfg.Callback.Kind),
		zap.Int("cache_ttl_s", cfg.Verifier.CacheTTLS),
		zap.Int("cache_max_entries", cfg.Verifier.CacheMax),
	)

	shared := service.NewShared(verifier, history)
	a.access = service.NewAccessService(shared, cb, service.AccessOptions{Logger: logger, Metrics: a.metrics})
	a.history = service.NewHistoryService(shared, logger, a.metrics)
	return a, nil
}

func buildTokenStore(
	ctx context.Context,
	cfg config.Config,
	static map[string]string,
	needSQL func(db.Dialect) (*sqlHandle, error),
) (store.TokenStore, error) {
	if cfg.Verifier.TokenBackend == "memory" {
		tokens := memory.NewTokenStore()
		for tok, name := range static {
			if err := tokens.Issue(tok, name); err != nil {
				return nil, err
			}
		}
		return tokens, nil
	}

	h, err := needSQL(db.Dialect(cfg.Verifier.TokenBackend))
	if err != nil {
		return nil, err
	}
	if h.dialect == db.SQLite && cfg.Env == "dev" {
		if err := db.SeedDev(ctx, h.db, db.SeedDevOptions{Tokens: static}); err != nil {
			return nil, fmt.Errorf("seed dev tokens: %w", err)
		}
	}
	return sqlstore.NewTokenStore(h.db, h.dialect, h.worker), nil
}
