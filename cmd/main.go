package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-messenger/internal/cache"
	"github.com/weiawesome/wes-messenger/internal/cipher"
	"github.com/weiawesome/wes-messenger/internal/config"
	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/internal/handler"
	"github.com/weiawesome/wes-messenger/internal/presence"
	"github.com/weiawesome/wes-messenger/internal/repository"
	"github.com/weiawesome/wes-messenger/internal/scheduler"
	"github.com/weiawesome/wes-messenger/internal/service"
	"github.com/weiawesome/wes-messenger/internal/throttle"
	"github.com/weiawesome/wes-messenger/pkg/database"
	pkgjwt "github.com/weiawesome/wes-messenger/pkg/jwt"
	pkglog "github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/middleware"
	"github.com/weiawesome/wes-messenger/pkg/pubsub"
	"github.com/weiawesome/wes-messenger/pkg/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "wes-messenger",
	})
	logger := pkglog.L()

	// 3. Init DB (GORM, auto-migrate)
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// 4. Init user cache (optional)
	var userCache cache.UserCache = cache.NopUserCache{}
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisUserCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to redis, user cache disabled")
		} else {
			userCache = rc
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis user cache connected")
		}
	}
	defer userCache.Close()

	// 5. Init event bus
	publisher, err := pubsub.NewPublisher(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create event publisher")
	}
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("event publisher ready")

	// 6. Init attachment storage
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to create attachment storage")
	}

	// 7. Create repos, gate, services
	userRepo := repository.NewGormUserRepository(db)
	followRepo := repository.NewGormFollowRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	registry := presence.NewRegistry()
	users := service.NewDirectory(userRepo, userCache, cfg.Cache.TTL)
	gate := throttle.NewGate(users, followRepo, messageRepo, throttle.Config{
		Window: cfg.Throttle.Window,
		Limit:  cfg.Throttle.Limit,
	})

	messageSvc := service.NewMessageService(messageRepo, users, gate, cipher.New(cfg.Cipher.Context), registry, publisher)
	presenceSvc := service.NewPresenceService(users, followRepo, registry, publisher)
	attachmentSvc := service.NewAttachmentService(store, cfg.Attachments)

	// 8. Create auth middleware
	tokens, err := pkgjwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessDuration)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens, users)

	// 9. Start scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(messageRepo, messageSvc, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize)
		sched.Start(ctx)
		logger.Info().Dur("interval", cfg.Scheduler.Interval).Msg("scheduler started")
	} else {
		logger.Warn().Msg("scheduler disabled; scheduled messages will not be released")
	}

	// 10. Setup Gin router + HTTP server
	httpHandler := handler.NewHandler(
		messageSvc,
		presenceSvc,
		attachmentSvc,
		handler.NewWSHandler(registry, cfg.WebSocket),
		authMiddleware,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	httpHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info().Str("addr", addr).Msg("wes-messenger starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		// 1. stop the scheduler between sweeps
		if sched != nil {
			sched.Stop()
			<-sched.Done()
		}

		// 2. drain HTTP; hijacked WebSocket connections are closed next
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
		}

		// 3. close push connections
		registry.CloseAll()

		// 4. flush the event bus
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing event publisher")
		}
		cancel()
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("wes-messenger stopped")
	case <-time.After(cfg.Server.ShutdownTimeout + 5*time.Second):
		logger.Warn().Msg("shutdown timed out")
	}
}
