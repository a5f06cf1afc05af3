// Command credcore-demo wires the engine against real backends and walks a
// registration-free login round trip. Configuration comes from the
// environment (optionally via a .env file):
//
//	REDIS_ADDR       redis host:port; falls back to an embedded miniredis
//	DATABASE_URL     postgres DSN; omitted = cache-only degraded mode
//	MAIL_ENDPOINT    transactional email HTTP endpoint
//	MAIL_API_KEY     bearer token for the endpoint
//	ADMIN_EMAIL      new-account notification address
//	ASSERTION_KEY    hs256 key for cross-subdomain assertions
//	METRICS_ADDR     prometheus exposition listen address, default :9109
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	credcore "github.com/axiohq/credcore"
	"github.com/axiohq/credcore/internal/mailer"
	promexport "github.com/axiohq/credcore/metrics/export/prometheus"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := credcore.New().WithLogger(logger)

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Fatal("start embedded redis", zap.Error(err))
		}
		defer mr.Close()
		addr = mr.Addr()
		logger.Info("using embedded redis", zap.String("addr", addr))
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	builder.WithRedis(client)

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()
		builder.WithPostgres(pool)
	} else {
		logger.Warn("no DATABASE_URL, running cache-only")
	}

	if endpoint := os.Getenv("MAIL_ENDPOINT"); endpoint != "" {
		builder.WithMailer(mailer.NewHTTP(endpoint, os.Getenv("MAIL_API_KEY"), logger))
	}

	cfg := credcore.DefaultConfig()
	cfg.AdminEmail = os.Getenv("ADMIN_EMAIL")
	if key := os.Getenv("ASSERTION_KEY"); key != "" {
		cfg.Assertion.Key = []byte(key)
	}
	builder.WithConfig(cfg)

	engine, err := builder.Build()
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}
	defer engine.Close()

	engine.StartAutoSync()

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9109"
	}
	handler, err := promexport.NewExporter(engine).Handler()
	if err != nil {
		logger.Fatal("metrics exporter", zap.Error(err))
	}
	srv := &http.Server{Addr: metricsAddr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	demo(ctx, engine, logger)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// demo registers an account and runs one login, so a fresh deployment shows
// activity on the metrics endpoint.
func demo(ctx context.Context, engine *credcore.Engine, logger *zap.Logger) {
	profile, err := engine.RegisterUser(ctx, "demo", "demo@example.com", "demo-pass-1")
	if err != nil {
		logger.Warn("demo register", zap.Error(err))
		return
	}
	res, err := engine.Login(ctx, "demo", "demo-pass-1", "")
	if err != nil {
		logger.Warn("demo login", zap.Error(err))
		return
	}
	ok, err := engine.ValidateSession(ctx, profile.UserID)
	logger.Info("demo session",
		zap.String("user_id", profile.UserID),
		zap.Time("expires_at", res.Session.ExpiresAt),
		zap.Bool("valid", ok),
		zap.Error(err))

	pending, err := engine.PendingSync(ctx)
	if err != nil {
		logger.Info("pending sync unavailable", zap.Error(err))
		return
	}
	logger.Info("pending sync", zap.Int("records", pending))
}
