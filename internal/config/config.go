package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr string
	Port       string
	GinMode    string

	DatabaseDriver  string
	DatabasePath    string
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	RedisURL string

	StatsWindowDays int
	WatermarkPolicy string

	LogLevel  string
	LogFormat string

	DefaultUserName  string
	DefaultUserEmail string
}

// LoadDotEnv 读取工作目录下的 .env（如果存在），已设置的环境变量不会被覆盖
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := env("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	driver := strings.ToLower(env("DATABASE_DRIVER", "sqlite"))
	if driver != "postgres" {
		driver = "sqlite"
	}

	return AppConfig{
		ListenAddr:       listenAddr,
		Port:             port,
		GinMode:          env("GIN_MODE", "release"),
		DatabaseDriver:   driver,
		DatabasePath:     env("DATABASE_PATH", "streaklog.db"),
		DatabaseURL:      env("DATABASE_URL", ""),
		MaxOpenConns:     envInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     envInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		RedisURL:         env("REDIS_URL", ""),
		StatsWindowDays:  envInt("STATS_WINDOW_DAYS", 30),
		WatermarkPolicy:  strings.ToLower(env("WATERMARK_POLICY", "monotonic")),
		LogLevel:         strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(env("LOG_FORMAT", "text")),
		DefaultUserName:  env("DEFAULT_USER_NAME", ""),
		DefaultUserEmail: env("DEFAULT_USER_EMAIL", ""),
	}
}

// SlogLevel 将 LOG_LEVEL 转换为 slog.Level，未知值按 info 处理
func (c AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger 按 LOG_FORMAT 构造 json 或 text 格式的 logger
func (c AppConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func env(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
