package handler

import (
	"context"

	"github.com/streaklog/internal/engine"
)

// statsProvider 是 handler 依赖的引擎入口，测试中可替换
type statsProvider interface {
	RecomputeHabitStats(ctx context.Context, habitID uint) (*engine.HabitResult, error)
	RecomputeCategoryStats(ctx context.Context, categoryID uint) (*engine.CategoryResult, error)
	CategoryStats(ctx context.Context, categoryID uint) (*engine.CategoryResult, error)
	RecomputeUserStats(ctx context.Context, userID uint) (*engine.UserResult, error)
	UserStats(ctx context.Context, userID uint) (*engine.UserResult, error)
	QueryAnalytics(ctx context.Context, userID uint, kind engine.AnalyticsKind, params engine.AnalyticsParams) (*engine.AnalyticsResult, error)
	RetrySave(ctx context.Context, saveErr *engine.SaveError) error
}

var _ statsProvider = (*engine.Engine)(nil)
