package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/streaklog/internal/streak"
)

// RecomputeHabitStats 从日志全量重算单个习惯的连胜与统计并写回。
// 同一习惯的重算串行执行；版本冲突时重试一次，仍冲突则返回 ErrConcurrentModification。
func (e *Engine) RecomputeHabitStats(ctx context.Context, habitID uint) (*HabitResult, error) {
	unlock := e.locks.Lock(habitID)
	defer unlock()

	return e.recomputeHabitLocked(ctx, habitID)
}

func (e *Engine) recomputeHabitLocked(ctx context.Context, habitID uint) (*HabitResult, error) {
	var lastErr error
	result, err := e.retrier.Do(ctx, func(ctx context.Context) (*HabitResult, error) {
		res, err := e.recomputeHabitOnce(ctx, habitID)
		lastErr = err
		return res, err
	})
	if err != nil {
		// 退避期间被取消时以取消原因为准
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return result, nil
}

func (e *Engine) recomputeHabitOnce(ctx context.Context, habitID uint) (*HabitResult, error) {
	habit, err := e.catalog.Habit(ctx, habitID)
	if err != nil {
		return nil, err
	}

	logs, err := e.logs.FindLogsForHabit(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("load habit logs: %w", err)
	}

	stats, current := e.computeHabit(habit, logs, e.today())
	result := &HabitResult{HabitID: habitID, Streak: current, Stats: stats, Version: habit.Version}

	version, err := e.aggregates.SaveHabitStats(ctx, habitID, stats, current, habit.Version)
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &SaveError{Level: LevelHabit, ID: habitID, Result: result, Err: err}
	}
	result.Version = version

	return result, nil
}

// computeHabit 为纯计算，不做任何 I/O
func (e *Engine) computeHabit(habit Habit, logs []LogEntry, today time.Time) (HabitStats, streak.Result) {
	current := streak.Compute(toDays(logs), today)
	start, end := e.window(today)

	var (
		stats      HabitStats
		windowLogs int
		windowDone int
		values     []float64
	)

	for _, entry := range logs {
		date := streak.Normalize(entry.Date)
		// 晚于今天的记录与连胜计算一致地忽略
		if date.After(end) {
			continue
		}
		if !date.Before(start) && !date.After(end) {
			windowLogs++
			if entry.Completed {
				windowDone++
			}
		}

		if !entry.Completed {
			continue
		}
		stats.TotalCompletions++
		if entry.Value != nil {
			values = append(values, *entry.Value)
		}
	}

	stats.CompletionRate = wholePercent(windowDone, windowLogs)
	if habit.TargetType != TargetBoolean && habit.TargetType != "" {
		stats.AverageValue = mean(values)
	}
	stats.BestStreak = e.applyWatermark(habit.Stats.BestStreak, current.Longest)

	return stats, current
}
