package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/hms-appointments/internal/api"
	"github.com/hackgods/hms-appointments/internal/appointment"
	"github.com/hackgods/hms-appointments/internal/booking"
	"github.com/hackgods/hms-appointments/internal/config"
	"github.com/hackgods/hms-appointments/internal/db"
	"github.com/hackgods/hms-appointments/internal/directory"
	"github.com/hackgods/hms-appointments/internal/gateway"
	"github.com/hackgods/hms-appointments/internal/logger"
	"github.com/hackgods/hms-appointments/internal/notify"
	redisclient "github.com/hackgods/hms-appointments/internal/redis"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	logg.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logg.Info("connected to Postgres")

	applied, err := db.Migrate(rootCtx, pgPool)
	if err != nil {
		logg.Fatal("migration error", zap.Error(err))
	}
	if len(applied) > 0 {
		logg.Info("migrations applied", zap.Strings("versions", applied))
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg, "hms-api-server")
	if err != nil {
		logg.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logg.Warn("error closing redis", zap.Error(err))
		}
	}()
	logg.Info("connected to Redis")

	notifier, closeNotifier, err := notify.New(cfg, logg)
	if err != nil {
		logg.Fatal("notifier init error", zap.String("driver", cfg.NotifyDriver), zap.Error(err))
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logg.Warn("error closing notifier", zap.Error(err))
		}
	}()

	dirStore := directory.NewPgStore(pgPool)
	dirSvc := directory.NewService(dirStore, dirStore, dirStore, logg.Named("directory"))

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	apptSvc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		dirSvc,
		locker,
		notifier,
		cfg,
		logg.Named("appointment"),
	)

	bookingSvc := booking.NewService(
		booking.NewRedisStore(rdb, cfg.DraftTTL),
		dirSvc,
		apptSvc,
		logg.Named("booking"),
	)

	gw, err := gateway.New(gateway.WithOrigins(gateway.DefaultRoutes(), cfg.GatewayOrigins), logg.Named("gateway"))
	if err != nil {
		logg.Fatal("gateway init error", zap.Error(err))
	}

	router := api.NewRouter(api.RouterConfig{
		Appointments:   apptSvc,
		Directory:      dirSvc,
		Booking:        bookingSvc,
		Gateway:        gw,
		Postgres:       pgPool,
		Redis:          api.RedisPinger{Client: rdb},
		Logger:         logg.Named("http"),
		Env:            cfg.Env,
		Version:        version,
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		if err != nil {
			logg.Error("http server error", zap.Error(err))
		}
	}

	logg.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("graceful shutdown failed", zap.Error(err))
	}
}
