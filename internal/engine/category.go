package engine

import (
	"context"
	"fmt"
)

// RecomputeCategoryStats 显式重算分类统计，无论是否被标记为过期
func (e *Engine) RecomputeCategoryStats(ctx context.Context, categoryID uint) (*CategoryResult, error) {
	category, err := e.catalog.Category(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return e.recomputeCategory(ctx, category)
}

// CategoryStats 读取分类统计；若已被标记过期则先重算
func (e *Engine) CategoryStats(ctx context.Context, categoryID uint) (*CategoryResult, error) {
	category, err := e.catalog.Category(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	dirty, err := e.dirty.IsDirty(ctx, LevelCategory, categoryID)
	if err != nil {
		return nil, fmt.Errorf("check category invalidation: %w", err)
	}
	if !dirty {
		return &CategoryResult{CategoryID: categoryID, Stats: category.Stats}, nil
	}

	return e.recomputeCategory(ctx, category)
}

func (e *Engine) recomputeCategory(ctx context.Context, category Category) (*CategoryResult, error) {
	// 先清除标记再计算：计算期间到达的新标记会保留到下一次读取
	if err := e.dirty.ClearDirty(ctx, LevelCategory, category.ID); err != nil {
		return nil, fmt.Errorf("clear category invalidation: %w", err)
	}

	stats, err := e.computeCategory(ctx, category)
	if err != nil {
		e.remark(ctx, LevelCategory, category.ID)
		return nil, err
	}

	result := &CategoryResult{CategoryID: category.ID, Stats: stats, Recomputed: true}
	if err := e.aggregates.SaveCategoryStats(ctx, category.ID, stats); err != nil {
		e.remark(ctx, LevelCategory, category.ID)
		return nil, &SaveError{Level: LevelCategory, ID: category.ID, Result: result, Err: err}
	}

	return result, nil
}

func (e *Engine) computeCategory(ctx context.Context, category Category) (CategoryStats, error) {
	habits, err := e.catalog.HabitsByCategory(ctx, category.ID)
	if err != nil {
		return CategoryStats{}, fmt.Errorf("load category habits: %w", err)
	}

	stats := CategoryStats{TotalHabits: len(habits)}
	activeIDs := make([]uint, 0, len(habits))
	for _, habit := range habits {
		if habit.Active {
			activeIDs = append(activeIDs, habit.ID)
		}
	}
	stats.ActiveHabits = len(activeIDs)
	if stats.ActiveHabits == 0 {
		return stats, nil
	}

	start, end := e.window(e.today())
	logs, err := e.logs.FindLogsInRange(ctx, category.UserID, start, end, activeIDs...)
	if err != nil {
		return CategoryStats{}, fmt.Errorf("load category logs: %w", err)
	}

	completions := 0
	for _, entry := range logs {
		if entry.Completed {
			completions++
		}
	}
	stats.CompletionRate = wholePercent(completions, stats.ActiveHabits*e.windowDays)

	return stats, nil
}

// remark 在重算失败时恢复过期标记，失败只记录日志
func (e *Engine) remark(ctx context.Context, level Level, id uint) {
	if err := e.dirty.MarkDirty(ctx, level, id); err != nil {
		e.logger.Warn("failed to restore invalidation", "level", level, "id", id, "error", err)
	}
}
