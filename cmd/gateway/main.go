// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventgate/internal/auth"
	"eventgate/internal/gateway"
	"eventgate/pkg/cache"
	"eventgate/pkg/config"
	"eventgate/pkg/db"
	"eventgate/pkg/logger"
	"eventgate/pkg/middleware"
	"eventgate/pkg/tenants"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "gateway")

	pool := db.MustConnect(cfg, log)

	var dir tenants.Directory
	if pool != nil {
		dir = tenants.NewPostgresDirectory(pool, log)
		if err := tenants.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		if err := tenants.SeedFromEnv(context.Background(), pool, os.Getenv("TENANT_SEED_JSON")); err != nil {
			log.Warnw("seed", "err", err)
		}
	} else {
		log.Warnw("DATABASE_URL not set, using in-memory tenant directory")
		dir = tenants.NewMemoryDirectory(log, cfg.TenantSeedFile)
	}

	var store cache.Cache
	var locks cache.Locker
	if rdb := db.MustRedis(cfg, log); rdb != nil {
		shared := cache.NewRedis(rdb)
		store, locks = shared, shared
	} else {
		log.Warnw("REDIS_URL not set, using in-process cache; CSRF and rate state will not survive restarts or scale out")
		store, locks = cache.NewMemory(), cache.NewMemoryLocker()
	}

	tokens := auth.NewTokenService(dir, log, cfg.JWTDefaultTTL)
	csrf := auth.NewCSRFService(store, locks, log, cfg.CSRFTTL, cfg.LockTimeout)
	limiter := auth.NewRateLimiter(store, log, cfg.RateLimitPerMinute, cfg.LockoutThreshold, cfg.LockoutWindow)
	gate := auth.NewGate(dir, tokens, limiter, log)
	svc := gateway.NewService(log, tokens, csrf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.Tracing(cfg, log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.WithTenant(dir))
		r.Use(middleware.CORS())
		// Mutating requests present their one-time token before credential
		// checks run.
		r.Use(middleware.RequireCSRF(csrf))
		r.Use(middleware.Authenticate(gate, log))
		svc.Routes(r)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("gateway listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("gateway stopped")
}
