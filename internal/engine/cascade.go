package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/streaklog/internal/streak"
)

// 级联策略：失效标记 + 读取时重算。
// 日志变更后同步重算所属习惯，分类与用户只被标记为过期，
// 并以 SkippedComputation 的形式告知调用方，下一次读取时再重算。

// UpsertLog 写入日志并执行级联
func (e *Engine) UpsertLog(ctx context.Context, entry LogEntry) (*MutationReport, error) {
	if entry.HabitID == 0 {
		return nil, ErrHabitNotFound
	}
	entry.Date = streak.Normalize(entry.Date)

	unlock := e.locks.Lock(entry.HabitID)
	defer unlock()

	saved, err := e.logs.UpsertLog(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("upsert log: %w", err)
	}

	return e.cascade(ctx, saved, false)
}

// DeleteLog 删除日志并执行级联
func (e *Engine) DeleteLog(ctx context.Context, habitID, logID uint) (*MutationReport, error) {
	unlock := e.locks.Lock(habitID)
	defer unlock()

	deleted, err := e.logs.DeleteLog(ctx, habitID, logID)
	if err != nil {
		return nil, fmt.Errorf("delete log: %w", err)
	}

	return e.cascade(ctx, deleted, true)
}

// cascade 必须在持有习惯锁时调用
func (e *Engine) cascade(ctx context.Context, entry LogEntry, deleted bool) (*MutationReport, error) {
	runID := uuid.NewString()
	report := &MutationReport{RunID: runID, Log: entry, Deleted: deleted}

	userID, categoryID := entry.UserID, uint(0)
	owner, ownerErr := e.catalog.Habit(ctx, entry.HabitID)
	if ownerErr == nil {
		userID, categoryID = owner.UserID, owner.CategoryID
	}

	// 日志已落库：无论习惯重算是否成功，上层汇总都必须标记为过期
	habit, err := e.recomputeHabitLocked(ctx, entry.HabitID)
	report.Skipped = e.InvalidateOwners(ctx, userID, categoryID)
	if err != nil {
		e.logger.Error("habit recompute failed",
			"run_id", runID,
			"habit_id", entry.HabitID,
			"invalidated", len(report.Skipped),
			"error", err,
		)
		return nil, err
	}
	if ownerErr != nil {
		return nil, ownerErr
	}
	report.Habit = *habit

	e.logger.Info("log mutation cascaded",
		"run_id", runID,
		"habit_id", entry.HabitID,
		"log_date", entry.Date.Format("2006-01-02"),
		"deleted", deleted,
		"current_streak", habit.Streak.Current,
		"skipped", len(report.Skipped),
	)

	return report, nil
}

// InvalidateOwners 将分类与用户标记为过期，返回被延后的重算。
// categoryIDs 中的 0 会被忽略；标记失败仅记录日志，下一次显式重算会修正。
func (e *Engine) InvalidateOwners(ctx context.Context, userID uint, categoryIDs ...uint) []SkippedComputation {
	skipped := make([]SkippedComputation, 0, len(categoryIDs)+1)

	seen := make(map[uint]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if err := e.dirty.MarkDirty(ctx, LevelCategory, id); err != nil {
			e.logger.Warn("failed to invalidate category", "category_id", id, "error", err)
			continue
		}
		skipped = append(skipped, SkippedComputation{
			Level:  LevelCategory,
			ID:     id,
			Reason: "marked stale; recomputed on next read",
		})
	}

	if userID != 0 {
		if err := e.dirty.MarkDirty(ctx, LevelUser, userID); err != nil {
			e.logger.Warn("failed to invalidate user", "user_id", userID, "error", err)
		} else {
			skipped = append(skipped, SkippedComputation{
				Level:  LevelUser,
				ID:     userID,
				Reason: "marked stale; recomputed on next read",
			})
		}
	}

	return skipped
}
