package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"promo-gate/internal/api"
	"promo-gate/internal/config"
	"promo-gate/internal/feature"
	"promo-gate/internal/fetcher"
	"promo-gate/internal/listener"
	"promo-gate/internal/popup"
	"promo-gate/internal/promotion"
	"promo-gate/internal/session"
	"promo-gate/internal/settings"
	"promo-gate/internal/storage"
)

// App is the wired service.
type App struct {
	Handler    http.Handler
	Admin      http.Handler
	Promotions *promotion.Repository
	Features   *feature.Gate
	Sessions   *session.Store

	pg      *storage.Store
	redis   *redis.Client
	cleanup []func()
}

// Build wires storage, the upstream client, the caches and the HTTP API.
func Build(ctx context.Context, cfg config.Config, clk clock.Clock) (*App, error) {
	a := &App{}

	kv, err := a.settingsStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	resolver := settings.NewResolver(kv, cfg.Upstream.BaseURL)

	fc := fetcher.New(resolver, cfg.Upstream.Timeout, fetcher.BreakerConfig{
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
	})
	a.Promotions = promotion.NewRepository(fc, cfg.Upstream.PromotionsPath, clk, cfg.Cache.PromotionsTTL)
	a.Features = feature.NewGate(fc, cfg.Upstream.FeaturesPath, clk, cfg.Cache.FeaturesTTL)

	opts := session.Options{Clock: clk, Interval: cfg.Rotation.Interval, IdleTTL: cfg.Session.IdleTTL}
	if a.redis != nil {
		client, ttl := a.redis, cfg.Session.IdleTTL
		opts.Markers = func(id string) popup.Marker { return popup.NewRedisMarker(client, id, ttl) }
	}
	a.Sessions = session.NewStore(a.Promotions, opts)
	a.cleanup = append(a.cleanup, a.Sessions.Close)

	h := &api.Handler{
		Promotions:  a.Promotions,
		Features:    a.Features,
		Sessions:    a.Sessions,
		Settings:    resolver,
		Clock:       clk,
		Placeholder: cfg.Upstream.PlaceholderImage,
	}
	a.Handler = api.Router(h)
	a.Admin = api.AdminRouter(h)
	return a, nil
}

func (a *App) settingsStore(ctx context.Context, cfg config.Config) (settings.KV, error) {
	switch cfg.Settings.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "redis":
		client, err := storage.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.redis = client
		a.cleanup = append(a.cleanup, func() { _ = client.Close() })
		return storage.NewRedisStore(client, ""), nil
	case "postgres":
		st, err := storage.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		a.cleanup = append(a.cleanup, st.Close)
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.pg = st
		return st, nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Settings.Backend)
	}
}

// StartListener follows settings changes made by other instances. It is a
// no-op unless settings live in Postgres.
func (a *App) StartListener(ctx context.Context, cfg config.Config) {
	if a.pg == nil {
		return
	}
	go listener.ListenAndInvalidate(ctx, a.pg, cfg.Listener.Channel, cfg.Backoff(), a.Promotions, a.Features)
}

// Close releases sessions and storage in reverse order of creation.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := Build(rootCtx, cfg, clock.New())
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}
	defer a.Close()

	a.StartListener(rootCtx, cfg)

	srv := newHTTPServer(cfg.Server.Addr, a.Handler)
	admin := newHTTPServer(cfg.Server.AdminAddr, a.Admin)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("settings", cfg.Settings.Backend).
			Str("base_url", cfg.Upstream.BaseURL).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.Server.AdminAddr).Msg("admin server starting")
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin server crashed")
		}
	}()

	waitForSignal()
	log.Info().Msg("shutdown...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
	_ = admin.Shutdown(shCtx)
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
