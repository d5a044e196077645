package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/hms-appointments/internal/appointment"
	"github.com/hackgods/hms-appointments/internal/config"
	"github.com/hackgods/hms-appointments/internal/db"
	"github.com/hackgods/hms-appointments/internal/directory"
	"github.com/hackgods/hms-appointments/internal/logger"
	"github.com/hackgods/hms-appointments/internal/notify"
	redisclient "github.com/hackgods/hms-appointments/internal/redis"
)

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

	logg.Info("noshow-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.String("timezone", cfg.Location.String()),
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

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg, "hms-noshow-worker")
	if err != nil {
		logg.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logg.Warn("error closing redis", zap.Error(err))
		}
	}()
	logg.Info("connected to Redis")

	dirStore := directory.NewPgStore(pgPool)
	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		directory.NewService(dirStore, dirStore, dirStore, logg.Named("directory")),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		notify.NewLogNotifier(logg),
		cfg,
		logg.Named("appointment"),
	)

	// Run once at startup
	runOnce(rootCtx, svc, logg)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logg.Info("shutdown signal received, stopping noshow worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logg)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logg *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	marked, err := svc.MarkNoShows(runCtx)
	if err != nil {
		logg.Error("noshow run error", zap.Error(err))
		return
	}
	logg.Info("noshow run complete",
		zap.Int("marked", marked),
		zap.Duration("took", time.Since(start)),
	)
}
