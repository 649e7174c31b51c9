package handler

import (
	"log/slog"
	"time"

	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db         *gorm.DB
	users      *service.UserService
	categories *service.CategoryService
	habits     *service.HabitService
	habitLogs  *service.HabitLogService
	stats      statsProvider
	logger     *slog.Logger
	now        func() time.Time
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}

	return &API{
		db:         db,
		users:      service.NewUserService(db),
		categories: service.NewCategoryService(db, eng),
		habits:     service.NewHabitService(db, eng),
		habitLogs:  service.NewHabitLogService(db, eng),
		stats:      eng,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock 替换当前时间来源，用于默认日期区间
func (a *API) WithClock(now func() time.Time) *API {
	if now != nil {
		a.now = now
		a.habitLogs.WithClock(now)
	}
	return a
}

// DB exposes the underlying gorm instance for health checks.
func (a *API) DB() *gorm.DB {
	return a.db
}
