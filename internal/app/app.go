package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/streaklog/internal/config"
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/handler"
	"github.com/streaklog/internal/router"
	"github.com/streaklog/internal/store"
	"gorm.io/gorm"
)

// App 持有进程级依赖：数据库、失效标记存储与引擎
type App struct {
	Config config.AppConfig
	DB     *gorm.DB
	Store  *store.Store
	Engine *engine.Engine
	Logger *slog.Logger

	redis *redis.Client
}

// New 按配置连接数据库（及可选的 Redis）并构造引擎
func New(cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gdb, err := db.Open(db.Options{
		Driver:          cfg.DatabaseDriver,
		Path:            cfg.DatabasePath,
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		_ = db.Close(gdb)
		return nil, err
	}
	db.DB = gdb

	a := &App{Config: cfg, DB: gdb, Store: store.New(gdb), Logger: logger}

	var dirty engine.Invalidator = store.NewGormInvalidator(gdb)
	if cfg.RedisURL != "" {
		client, err := connectRedis(cfg.RedisURL)
		if err != nil {
			_ = db.Close(gdb)
			return nil, err
		}
		a.redis = client
		dirty = store.NewRedisInvalidator(client, "streaklog")
		logger.Info("using redis for stats invalidation")
	}

	a.Engine = engine.New(a.Store, a.Store, a.Store, dirty).
		WithWindowDays(cfg.StatsWindowDays).
		WithWatermarkPolicy(engine.ParseWatermarkPolicy(cfg.WatermarkPolicy)).
		WithLogger(logger)

	logger.Info("engine ready",
		"window_days", a.Engine.WindowDays(),
		"watermark_policy", a.Engine.WatermarkPolicy(),
	)

	return a, nil
}

func connectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Router 构造 HTTP 路由
func (a *App) Router() *gin.Engine {
	return router.SetupRouter(handler.NewAPI(a.DB, a.Engine, a.Logger), a.Logger)
}

// Close 释放连接
func (a *App) Close() error {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("close redis failed", "error", err)
		}
	}
	return db.Close(a.DB)
}
