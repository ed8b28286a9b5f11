package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/gbus-app/gbus-server/internal/cache"
	"github.com/gbus-app/gbus-server/internal/config"
	"github.com/gbus-app/gbus-server/internal/database"
	"github.com/gbus-app/gbus-server/internal/lock"
	"github.com/gbus-app/gbus-server/internal/logging"
	"github.com/gbus-app/gbus-server/internal/middleware"
	"github.com/gbus-app/gbus-server/internal/queue"
	"github.com/gbus-app/gbus-server/internal/realtime"
	"github.com/gbus-app/gbus-server/internal/repository"
	"github.com/gbus-app/gbus-server/internal/router"
	"github.com/gbus-app/gbus-server/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	profiles := cache.NewProfiles(rdb, cfg.ProfileCacheTTL, users.GetByID, logger)
	hub := realtime.NewHub(logger)

	var publisher service.Publisher = service.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub := service.NewAMQPPublisher(cfg.AMQPURL, logger)
		defer amqpPub.Close()
		publisher = amqpPub
	} else {
		logger.Info("RABBITMQ_URL not set, domain events disabled")
	}

	services := service.New(service.Deps{
		DB:        db,
		Locker:    lock.New(rdb, cfg.SessionLockTTL),
		Publisher: publisher,
		Notifier:  hub,
		Profiles:  profiles,
		Logger:    logger,
	}, service.OptionsFromConfig(cfg))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID(), middleware.RequestLogger(logger), echomw.Recover())
	router.Setup(e, router.Deps{
		Cfg:      cfg,
		DB:       db,
		Services: services,
		Profiles: profiles,
		Hub:      hub,
		Limiter:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:    middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	})

	g, gctx := errgroup.WithContext(ctx)
	if cfg.AMQPURL != "" {
		g.Go(func() error {
			err := queue.StartEventConsumer(gctx, cfg.AMQPURL, cfg.EventLogPath)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db_driver", cfg.DBDriver, "redis", rdb != nil)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
