package engine

import (
	"context"
	"time"

	"github.com/streaklog/internal/streak"
)

// LogStore 为引擎读取/写入打卡日志的窄接口，引擎本身不管理连接与表结构
type LogStore interface {
	// FindLogsForHabit 返回习惯的全部日志，按日期倒序
	FindLogsForHabit(ctx context.Context, habitID uint) ([]LogEntry, error)
	// FindLogsInRange 返回用户在 [start, end] 内的日志，habitIDs 为空时不过滤习惯
	FindLogsInRange(ctx context.Context, userID uint, start, end time.Time, habitIDs ...uint) ([]LogEntry, error)
	// UpsertLog 按 (habit, date) 创建或更新日志，并递增习惯版本号
	UpsertLog(ctx context.Context, entry LogEntry) (LogEntry, error)
	// DeleteLog 删除属于 habitID 的日志并递增习惯版本号，返回被删除的记录；
	// 日志不存在或属于其他习惯时返回 ErrLogNotFound
	DeleteLog(ctx context.Context, habitID, id uint) (LogEntry, error)
}

// AggregateStore 写回各层统计缓存
type AggregateStore interface {
	// SaveHabitStats 仅当习惯版本号等于 expectedVersion 时写入，返回新版本号；
	// 版本不一致时返回 ErrConcurrentModification
	SaveHabitStats(ctx context.Context, habitID uint, stats HabitStats, result streak.Result, expectedVersion int) (int, error)
	SaveCategoryStats(ctx context.Context, categoryID uint, stats CategoryStats) error
	SaveUserStats(ctx context.Context, userID uint, stats UserStats) error
}

// Catalog 提供归属关系查询
type Catalog interface {
	Habit(ctx context.Context, id uint) (Habit, error)
	Category(ctx context.Context, id uint) (Category, error)
	User(ctx context.Context, id uint) (User, error)
	HabitsByCategory(ctx context.Context, categoryID uint) ([]Habit, error)
	HabitsByUser(ctx context.Context, userID uint) ([]Habit, error)
	CategoriesByUser(ctx context.Context, userID uint) ([]Category, error)
}

// Invalidator 记录哪些分类/用户的统计缓存已过期，等待下一次读取时重算
type Invalidator interface {
	MarkDirty(ctx context.Context, level Level, id uint) error
	IsDirty(ctx context.Context, level Level, id uint) (bool, error)
	ClearDirty(ctx context.Context, level Level, id uint) error
}
