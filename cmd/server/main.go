package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"leaddesk/internal/config"
	"leaddesk/internal/domain"
	"leaddesk/internal/events"
	"leaddesk/internal/httpserver"
	"leaddesk/internal/logging"
	"leaddesk/internal/security"
	"leaddesk/internal/service"
	"leaddesk/internal/store/postgres"
	"leaddesk/internal/store/sqlite"
	"leaddesk/internal/tasks"
	"leaddesk/internal/worker"
	"leaddesk/internal/ws"
)

var version = "dev"

// @title           leaddesk API
// @version         1.0
// @description     Tour lead coordination: claim windows, expiry, chat and notifications.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type repositories struct {
	users         domain.UserRepository
	leads         domain.LeadRepository
	messages      domain.MessageRepository
	notifications domain.NotificationRepository
}

func openStore(cfg *config.Config) (*sql.DB, repositories, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, repositories{}, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			users:         sqlite.NewUserRepo(db),
			leads:         sqlite.NewLeadRepo(db),
			messages:      sqlite.NewMessageRepo(db),
			notifications: sqlite.NewNotificationRepo(db),
		}, nil
	default:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, repositories{}, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			users:         postgres.NewUserRepo(db),
			leads:         postgres.NewLeadRepo(db),
			messages:      postgres.NewMessageRepo(db),
			notifications: postgres.NewNotificationRepo(db),
		}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.LogFormat, cfg.LogVerbose, os.Stdout, version)
	logger.SetAsDefault()

	db, repos, err := openStore(cfg)
	if err != nil {
		logger.LogError("failed to open store", err, "driver", cfg.StoreDriver)
		os.Exit(1)
	}
	defer db.Close()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		logger.LogError("failed to initialize encryptor", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		bus events.Bus
		rdb *redis.Client
	)
	if cfg.RedisEnabled() {
		rdb, err = events.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.LogError("failed to connect to redis", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		defer rdb.Close()
		bus = events.NewRedisBus(rdb)
	} else {
		bus = events.NewMemoryBus(256)
	}
	defer bus.Close()

	authSvc := service.NewAuthService(repos.users, tokenSvc, passwordHasher)
	notificationSvc := service.NewNotificationService(repos.notifications, bus)
	chatSvc := service.NewChatService(repos.messages, encryptor, cfg.MaxMessagesPerChat)
	leadSvc := service.NewLeadService(repos.leads, notificationSvc, bus, cfg.LeadClaimWindow)

	var taskServer *asynq.Server
	if rdb != nil {
		scheduler := tasks.NewScheduler(rdb)
		defer scheduler.Close()
		leadSvc.SetScheduler(scheduler)

		taskServer = tasks.NewServer(rdb, 4)
		if err := taskServer.Start(tasks.NewTaskProcessor(leadSvc).Mux()); err != nil {
			logger.LogError("failed to start task server", err)
			os.Exit(1)
		}
		logger.Info("lead expiry tasks enabled")
	}

	sweeper := worker.NewSweeper(leadSvc, cfg.LeadSweepInterval, logger.Logger)
	go sweeper.Run(ctx)

	hub := ws.NewHub(bus)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.LogError("hub stopped", err)
		}
	}()

	limiter := httpserver.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	go limiter.Cleanup(ctx, 5*time.Minute)

	wsHandler := ws.MakeHandler(hub, authSvc, chatSvc, ws.Options{
		AllowedOrigins: cfg.CORSOrigins,
		RatePerSecond:  cfg.RateLimitPerSecond,
		RateBurst:      cfg.RateLimitBurst,
	})

	router := httpserver.NewRouter(cfg, httpserver.Services{
		Auth:          authSvc,
		Leads:         leadSvc,
		Notifications: notificationSvc,
		Limiter:       limiter,
		WS:            wsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr(), "store", cfg.StoreDriver, "redis", cfg.RedisEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("server error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogError("graceful shutdown failed", err)
	}
	if taskServer != nil {
		taskServer.Shutdown()
	}
}
