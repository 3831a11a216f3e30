package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"chat-service/internal/auth"
	"chat-service/internal/config"
	"chat-service/internal/directory"
	"chat-service/internal/history"
	"chat-service/internal/logger"
	redisutil "chat-service/internal/redis"
	"chat-service/internal/ws"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if cfg.TokenSecret == "" {
		slog.Error("TOKEN_SECRET is required")
		os.Exit(1)
	}

	dir, err := loadDirectory(cfg)
	if err != nil {
		slog.Error("failed to load channel directory", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store     history.Store
		publisher ws.FramePublisher
		revoked   auth.RevocationChecker
		bridge    *redisutil.Bridge
	)
	if cfg.RedisURL != "" {
		rdb, err := redisutil.Connect(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		store = history.NewRedisStore(rdb, cfg.HistoryLimit)
		revoked = redisutil.NewRevocationSet(rdb)
		bridge = redisutil.NewBridge(rdb)
		publisher = bridge
	} else {
		slog.Info("no REDIS_URL set, running single-instance with in-memory history")
		store = history.NewMemoryStore(cfg.HistoryLimit)
	}

	verifier := auth.NewVerifier([]byte(cfg.TokenSecret), revoked)
	hub := ws.NewHub(dir, store, cfg.HistoryLimit, publisher)

	if bridge != nil {
		go func() {
			if err := bridge.Subscribe(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("redis bridge stopped", "error", err)
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "chat-service"})
	})

	r.GET("/api/chat/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "channels": dir.List()})
	})

	r.GET("/api/chat/auth/me", func(c *gin.Context) {
		token := auth.ExtractTokenFromRequest(c.Request)
		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid or expired session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "user": identity})
	})

	r.GET("/ws", func(c *gin.Context) {
		ws.ServeWS(hub, verifier, c.Writer, c.Request)
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("forced shutdown", "error", err)
		}
	}()

	slog.Info("chat service listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func loadDirectory(cfg *config.Config) (*directory.Directory, error) {
	if cfg.ChannelsFile != "" {
		return directory.NewFromFile(cfg.ChannelsFile)
	}
	return directory.NewWithDefaults(), nil
}
