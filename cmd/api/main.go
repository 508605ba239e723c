package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/unishare/unishare-api/internal/repository"
	"github.com/unishare/unishare-api/internal/router"
	"github.com/unishare/unishare-api/internal/service"
	"github.com/unishare/unishare-api/pkg/cache"
	"github.com/unishare/unishare-api/pkg/config"
	"github.com/unishare/unishare-api/pkg/database"
	"github.com/unishare/unishare-api/pkg/logger"
	"github.com/unishare/unishare-api/pkg/storage"
)

// @title UniShare API
// @version 1.0.0
// @description Resource sharing backend for university course material
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, listing cache disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Cache.TTL, logr, true)
		}
	}

	fileStorage, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init file storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	txManager := repository.NewTxManager(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	catalogService := service.NewCatalogService(catalogRepo, logr)
	resourceService := service.NewResourceService(
		resourceRepo,
		catalogService,
		txManager,
		fileStorage,
		signer,
		cacheService,
		validate,
		logr,
		service.ResourceServiceConfig{
			MaxFileSize:  cfg.Storage.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Storage.AllowedMIMEs,
			APIPrefix:    cfg.APIPrefix,
		},
	)

	engine := router.New(router.Deps{
		Config:   cfg,
		Logger:   logr,
		Auth:     authService,
		Catalog:  catalogService,
		Resource: resourceService,
		Metrics:  metricsService,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		serverErrors <- srv.ListenAndServe()
	}()

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	case sig := <-osSignals:
		logr.Sugar().Infow("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
