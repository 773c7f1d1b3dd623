// Package app opens a workspace and wires the validation engine from config.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"leadready/internal/cache"
	"leadready/internal/config"
	"leadready/internal/db"
	"leadready/internal/dnsprobe"
	"leadready/internal/domains"
	"leadready/internal/emailcheck"
	"leadready/internal/engine"
	"leadready/internal/migrate"
	"leadready/internal/retry"
	"leadready/internal/search"
	"leadready/internal/smtpprobe"
	"leadready/internal/webprobe"
)

// OpenWorkspace opens the workspace database and applies migrations.
func OpenWorkspace(workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// LoadConfig reads path when given, else the workspace's leadready.yml,
// else the defaults.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.Load(workspace)
}

// Build returns an engine whose probers, caches and limiters follow cfg. The
// returned close function releases the shared cache connection.
func Build(ctx context.Context, conn *sql.DB, cfg *config.Config, logger *slog.Logger) (engine.Engine, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	closeFn := func() {}

	var rc *redis.Client
	if cfg.Cache.Backend == config.CacheRedis {
		var err error
		rc, err = cache.ConnectRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return engine.Engine{}, closeFn, err
		}
		closeFn = func() { _ = rc.Close() }
		logger.Info("using redis cache", "addr", cfg.Cache.RedisAddr)
	}
	prefix := cfg.Cache.Prefix
	if prefix == "" {
		prefix = "leadready"
	}

	freeMail := domains.NewSet(cfg.Domains.FreeMail...)
	disposable := domains.NewSet(cfg.Domains.Disposable...)
	retrier := retry.Executor{Logger: logger.With("component", "retry")}

	resolver := dnsprobe.New(
		&dnsprobe.DNSClient{Nameservers: cfg.DNS.Nameservers, Timeout: cfg.DNS.Timeout},
		cache.New[dnsprobe.Result](rc, prefix+":dns:", cfg.DNS.CacheTTL),
		freeMail,
	)
	resolver.Retry = retrier
	resolver.Logger = logger.With("component", "dns")

	smtp := &smtpprobe.Prober{
		Timeout:    cfg.SMTP.Timeout,
		HeloDomain: cfg.SMTP.HeloDomain,
		Logger:     logger.With("component", "smtp"),
	}
	if cfg.SMTP.RatePerSecond > 0 {
		smtp.Limiter = rate.NewLimiter(rate.Limit(cfg.SMTP.RatePerSecond), 1)
	}

	email := &emailcheck.Validator{
		DNS:        resolver,
		SMTP:       smtp,
		Disposable: disposable,
		FreeMail:   freeMail,
		Strategy:   emailcheck.Strategy(cfg.Validation.Strategy),
		Strict:     !cfg.Validation.Lenient,
		MaxMXHosts: cfg.SMTP.MaxMXHosts,
		Logger:     logger.With("component", "email"),
	}

	web := webprobe.NewProber(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cache.New[webprobe.Result](rc, prefix+":web:", cfg.HTTP.CacheTTL))
	web.Logger = logger.With("component", "website")

	websites := &webprobe.Resolver{Prober: web, FreeMail: freeMail, Logger: logger.With("component", "resolver")}
	if cfg.Search.Enabled {
		ddg := search.NewDuckDuckGo(cfg.Search.Endpoint, cfg.Search.RatePerSecond)
		ddg.Timeout = cfg.Search.Timeout
		ddg.Retry = retrier
		ddg.Logger = logger.With("component", "search")
		websites.Searcher = ddg
	}

	eng := engine.New(conn, cfg)
	eng.Email = email
	eng.Website = web
	eng.Resolver = websites
	eng.Retry = retrier
	eng.Logger = logger
	return eng, closeFn, nil
}
