// Package main provides the session server binary: the WebSocket game
// endpoint plus the admin HTTP surface.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/triadgame/server/internal/admin"
	"github.com/triadgame/server/internal/config"
	"github.com/triadgame/server/internal/game/registry"
	gamesync "github.com/triadgame/server/internal/game/sync"
	"github.com/triadgame/server/internal/game/validate"
	"github.com/triadgame/server/internal/observability"
	"github.com/triadgame/server/internal/server"
	"github.com/triadgame/server/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty = built-in defaults")
	flag.Parse()

	ctx := context.Background()

	var cfg config.Config
	if *configPath == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting session server",
		zap.String("addr", cfg.Server.Addr()),
	)

	tracker := validate.NewTracker(cfg.Violations.Window, cfg.Violations.KickThreshold)
	validator := validate.New(cfg.Game)
	reg := registry.New(cfg.Game, logger, validator, tracker)

	hub := ws.NewHub(cfg.Server, logger, reg)
	reg.SetPublisher(hub)

	scheduler := gamesync.NewScheduler(cfg.Sync, logger, reg, hub)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", hub.HandleWS)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       reg.RoomCount(),
			"connections": hub.ConnCount(),
		})
	})
	admin.NewHandler(reg, logger).Register(router)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			logger.Info("http server listening",
				zap.String("addr", cfg.Server.Addr()),
			)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			hub.Shutdown()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		},
	})

	lifecycle.Add("sync", scheduler)

	logger.Info("session server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
