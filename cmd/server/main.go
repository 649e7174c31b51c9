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

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/app"
	"github.com/streaklog/internal/config"
	"github.com/streaklog/internal/db"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	// 初始化数据库与引擎
	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("failed to close application", "error", err)
		}
	}()

	if user, err := db.EnsureUser(cfg.DefaultUserName, cfg.DefaultUserEmail); err != nil {
		logger.Error("failed to ensure default user", "error", err)
		os.Exit(1)
	} else if user != nil {
		logger.Info("default user ready", "user_id", user.ID, "username", user.Username)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to run server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
}
