// Package engine 实现连胜与汇总统计的计算引擎：
// 习惯/分类/用户三级聚合、日志变更后的级联协调，以及只读的分析查询。
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/streaklog/internal/streak"
)

const defaultWindowDays = 30

// Engine 是调用方唯一需要持有的入口
type Engine struct {
	logs       LogStore
	aggregates AggregateStore
	catalog    Catalog
	dirty      Invalidator

	windowDays int
	watermark  WatermarkPolicy
	now        func() time.Time
	logger     *slog.Logger

	locks   *keyedMutex
	retrier retry.Retry[*HabitResult]
}

// New 构造 Engine，默认 30 天窗口、单调水位、UTC 当前时间
func New(logs LogStore, aggregates AggregateStore, catalog Catalog, dirty Invalidator) *Engine {
	return &Engine{
		logs:       logs,
		aggregates: aggregates,
		catalog:    catalog,
		dirty:      dirty,
		windowDays: defaultWindowDays,
		watermark:  WatermarkMonotonic,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
		locks:      newKeyedMutex(),
		retrier: retry.New[*HabitResult](retry.Config{
			MaxAttempts:   2,
			InitialDelay:  10 * time.Millisecond,
			MaxDelay:      100 * time.Millisecond,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			IsRetryable: func(err error) bool {
				return errors.Is(err, ErrConcurrentModification)
			},
		}),
	}
}

// WithWindowDays 调整完成率统计窗口
func (e *Engine) WithWindowDays(days int) *Engine {
	if days <= 0 {
		return e
	}
	e.windowDays = days
	return e
}

// WithWatermarkPolicy 设置水位策略
func (e *Engine) WithWatermarkPolicy(policy WatermarkPolicy) *Engine {
	if policy == "" {
		return e
	}
	e.watermark = policy
	return e
}

// WithClock 允许在测试中固定"今天"
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now == nil {
		return e
	}
	e.now = now
	return e
}

// WithLogger 设置日志输出
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger == nil {
		return e
	}
	e.logger = logger
	return e
}

// WatermarkPolicy 返回当前生效的水位策略
func (e *Engine) WatermarkPolicy() WatermarkPolicy {
	return e.watermark
}

// WindowDays 返回当前统计窗口天数
func (e *Engine) WindowDays() int {
	return e.windowDays
}

func (e *Engine) today() time.Time {
	return streak.Normalize(e.now())
}

// window 返回以 today 结尾、长度为 windowDays 的闭区间
func (e *Engine) window(today time.Time) (time.Time, time.Time) {
	return today.AddDate(0, 0, -(e.windowDays - 1)), today
}

func (e *Engine) applyWatermark(stored, fresh int) int {
	if e.watermark == WatermarkCorrecting {
		return fresh
	}
	return max(stored, fresh)
}

// RetrySave 重新写回 SaveError 中缓存的计算结果，不再重算
func (e *Engine) RetrySave(ctx context.Context, saveErr *SaveError) error {
	if saveErr == nil {
		return nil
	}

	switch result := saveErr.Result.(type) {
	case *HabitResult:
		unlock := e.locks.Lock(result.HabitID)
		defer unlock()
		version, err := e.aggregates.SaveHabitStats(ctx, result.HabitID, result.Stats, result.Streak, result.Version)
		if err != nil {
			return fmt.Errorf("retry habit save: %w", err)
		}
		result.Version = version
		return nil
	case *CategoryResult:
		if err := e.aggregates.SaveCategoryStats(ctx, result.CategoryID, result.Stats); err != nil {
			return fmt.Errorf("retry category save: %w", err)
		}
		return e.dirty.ClearDirty(ctx, LevelCategory, result.CategoryID)
	case *UserResult:
		if err := e.aggregates.SaveUserStats(ctx, result.UserID, result.Stats); err != nil {
			return fmt.Errorf("retry user save: %w", err)
		}
		return e.dirty.ClearDirty(ctx, LevelUser, result.UserID)
	default:
		return fmt.Errorf("retry save: unsupported result %T", saveErr.Result)
	}
}

func toDays(entries []LogEntry) []streak.Day {
	days := make([]streak.Day, 0, len(entries))
	for _, entry := range entries {
		days = append(days, streak.Day{Date: entry.Date, Completed: entry.Completed})
	}
	return days
}
