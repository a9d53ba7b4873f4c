package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"downbeat/internal/config"
	"downbeat/internal/engine"
	apphttp "downbeat/internal/http"
	"downbeat/internal/remote"
	"downbeat/internal/repository/sqlite"
	"downbeat/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	cache := sqlite.NewStatusCacheRepository(db)
	if err := cache.Init(ctx); err != nil {
		logger.Fatalf("init status cache: %v", err)
	}

	taskStore := store.New(cache, logger)
	client := remote.NewClient(cfg.Remote.BaseURL, nil)

	eng := engine.New(engine.Config{
		PollInterval:        cfg.Engine.PollInterval,
		ReconcileInterval:   cfg.Engine.ReconcileInterval,
		StallPolls:          cfg.Engine.StallPolls,
		DoneCleanupDelay:    cfg.Engine.DoneCleanupDelay,
		FailureCleanupDelay: cfg.Engine.FailureCleanupDelay,
		RetryBaseDelay:      cfg.Engine.RetryBaseDelay,
		RetryMaxDelay:       cfg.Engine.RetryMaxDelay,
		RequestsPerSecond:   cfg.Remote.RequestsPerSecond,
		Logger:              logger,
	}, taskStore, client, cache)

	if err := eng.Start(ctx); err != nil {
		logger.Fatalf("start engine: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(eng, taskStore)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	eng.Shutdown()

	logger.Info("bye")
}
