package engine

import (
	"context"
	"fmt"

	"github.com/streaklog/internal/streak"
)

// RecomputeUserStats 显式重算用户统计
func (e *Engine) RecomputeUserStats(ctx context.Context, userID uint) (*UserResult, error) {
	user, err := e.catalog.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.recomputeUser(ctx, user)
}

// UserStats 读取用户统计；若已被标记过期则先重算
func (e *Engine) UserStats(ctx context.Context, userID uint) (*UserResult, error) {
	user, err := e.catalog.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	dirty, err := e.dirty.IsDirty(ctx, LevelUser, userID)
	if err != nil {
		return nil, fmt.Errorf("check user invalidation: %w", err)
	}
	if !dirty {
		return &UserResult{UserID: userID, Stats: user.Stats}, nil
	}

	return e.recomputeUser(ctx, user)
}

func (e *Engine) recomputeUser(ctx context.Context, user User) (*UserResult, error) {
	if err := e.dirty.ClearDirty(ctx, LevelUser, user.ID); err != nil {
		return nil, fmt.Errorf("clear user invalidation: %w", err)
	}

	stats, err := e.computeUser(ctx, user)
	if err != nil {
		e.remark(ctx, LevelUser, user.ID)
		return nil, err
	}

	result := &UserResult{UserID: user.ID, Stats: stats, Recomputed: true}
	if err := e.aggregates.SaveUserStats(ctx, user.ID, stats); err != nil {
		e.remark(ctx, LevelUser, user.ID)
		return nil, &SaveError{Level: LevelUser, ID: user.ID, Result: result, Err: err}
	}

	return result, nil
}

// computeUser 逐个习惯从日志计算连胜：当前连胜为活跃习惯之和，最长连胜取最大值并应用水位
func (e *Engine) computeUser(ctx context.Context, user User) (UserStats, error) {
	habits, err := e.catalog.HabitsByUser(ctx, user.ID)
	if err != nil {
		return UserStats{}, fmt.Errorf("load user habits: %w", err)
	}

	today := e.today()
	stats := UserStats{TotalHabits: len(habits)}
	longest := 0

	for _, habit := range habits {
		logs, err := e.logs.FindLogsForHabit(ctx, habit.ID)
		if err != nil {
			return UserStats{}, fmt.Errorf("load logs for habit %d: %w", habit.ID, err)
		}

		for _, entry := range logs {
			if entry.Completed && !streak.Normalize(entry.Date).After(today) {
				stats.TotalCompletions++
			}
		}

		res := streak.Compute(toDays(logs), today)
		if habit.Active {
			stats.CurrentStreak += res.Current
		}
		longest = max(longest, res.Longest)
	}

	stats.LongestStreak = e.applyWatermark(user.Stats.LongestStreak, longest)
	return stats, nil
}
