package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/streak"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 基于 gorm 实现引擎的 LogStore / AggregateStore / Catalog
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ engine.LogStore       = (*Store)(nil)
	_ engine.AggregateStore = (*Store)(nil)
	_ engine.Catalog        = (*Store)(nil)
)

// New 构造 Store
func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb, now: func() time.Time { return time.Now().UTC() }}
}

// DB 暴露底层连接，供服务层共享事务
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FindLogsForHabit 返回习惯的全部日志，按日期倒序
func (s *Store) FindLogsForHabit(ctx context.Context, habitID uint) ([]engine.LogEntry, error) {
	var rows []db.HabitLog
	if err := s.db.WithContext(ctx).
		Where("habit_id = ?", habitID).
		Order("log_date DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find habit logs: %w", err)
	}
	return toEntries(rows), nil
}

// FindLogsInRange 返回用户在闭区间内的日志，按日期、习惯升序
func (s *Store) FindLogsInRange(ctx context.Context, userID uint, start, end time.Time, habitIDs ...uint) ([]engine.LogEntry, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("log_date BETWEEN ? AND ?", streak.Normalize(start), streak.Normalize(end))
	if len(habitIDs) > 0 {
		query = query.Where("habit_id IN ?", habitIDs)
	}

	var rows []db.HabitLog
	if err := query.Order("log_date ASC, habit_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find logs in range: %w", err)
	}
	return toEntries(rows), nil
}

// UpsertLog 按 (habit_id, log_date) 幂等写入，同一事务内递增习惯版本号
func (s *Store) UpsertLog(ctx context.Context, entry engine.LogEntry) (engine.LogEntry, error) {
	var saved db.HabitLog

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var habit db.Habit
		if err := tx.Select("id", "user_id").First(&habit, entry.HabitID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return engine.ErrHabitNotFound
			}
			return fmt.Errorf("find habit: %w", err)
		}

		record := db.HabitLog{
			HabitID:     entry.HabitID,
			UserID:      habit.UserID,
			LogDate:     streak.Normalize(entry.Date),
			Completed:   entry.Completed,
			Value:       entry.Value,
			Unit:        entry.Unit,
			Mood:        entry.Mood,
			Difficulty:  entry.Difficulty,
			CompletedAt: entry.CompletedAt,
			Source:      entry.Source,
			Note:        entry.Note,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "habit_id"}, {Name: "log_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"completed", "value", "unit", "mood", "difficulty",
				"completed_at", "source", "note", "updated_at",
			}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("upsert habit log: %w", err)
		}

		if err := tx.Where("habit_id = ? AND log_date = ?", record.HabitID, record.LogDate).First(&saved).Error; err != nil {
			return fmt.Errorf("reload habit log: %w", err)
		}

		return bumpVersion(tx, habit.ID)
	})
	if err != nil {
		return engine.LogEntry{}, err
	}

	return toEntry(saved), nil
}

// DeleteLog 物理删除习惯下的日志并递增习惯版本号
func (s *Store) DeleteLog(ctx context.Context, habitID, id uint) (engine.LogEntry, error) {
	var record db.HabitLog

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND habit_id = ?", id, habitID).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return engine.ErrLogNotFound
			}
			return fmt.Errorf("find habit log: %w", err)
		}
		if err := tx.Delete(&db.HabitLog{}, id).Error; err != nil {
			return fmt.Errorf("delete habit log: %w", err)
		}
		return bumpVersion(tx, record.HabitID)
	})
	if err != nil {
		return engine.LogEntry{}, err
	}

	return toEntry(record), nil
}

func bumpVersion(tx *gorm.DB, habitID uint) error {
	if err := tx.Model(&db.Habit{}).
		Where("id = ?", habitID).
		UpdateColumn("version", gorm.Expr("version + ?", 1)).Error; err != nil {
		return fmt.Errorf("bump habit version: %w", err)
	}
	return nil
}

// SaveHabitStats 以版本号做条件更新，影响行数为 0 时区分不存在与并发修改
func (s *Store) SaveHabitStats(ctx context.Context, habitID uint, stats engine.HabitStats, result streak.Result, expectedVersion int) (int, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&db.Habit{}).
		Where("id = ? AND version = ?", habitID, expectedVersion).
		UpdateColumns(map[string]any{
			"streak_current":        result.Current,
			"streak_longest":        result.Longest,
			"streak_last_completed": result.LastCompleted,
			"total_completions":     stats.TotalCompletions,
			"completion_rate":       stats.CompletionRate,
			"average_value":         stats.AverageValue,
			"best_streak":           stats.BestStreak,
			"stats_computed_at":     now,
			"version":               gorm.Expr("version + ?", 1),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("save habit stats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&db.Habit{}).Where("id = ?", habitID).Count(&count).Error; err != nil {
			return 0, fmt.Errorf("check habit: %w", err)
		}
		if count == 0 {
			return 0, engine.ErrHabitNotFound
		}
		return 0, fmt.Errorf("%w: habit %d changed since version %d", engine.ErrConcurrentModification, habitID, expectedVersion)
	}
	return expectedVersion + 1, nil
}

// SaveCategoryStats 写回分类统计
func (s *Store) SaveCategoryStats(ctx context.Context, categoryID uint, stats engine.CategoryStats) error {
	res := s.db.WithContext(ctx).Model(&db.Category{}).
		Where("id = ?", categoryID).
		UpdateColumns(map[string]any{
			"total_habits":      stats.TotalHabits,
			"active_habits":     stats.ActiveHabits,
			"completion_rate":   stats.CompletionRate,
			"stats_computed_at": s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("save category stats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return engine.ErrCategoryNotFound
	}
	return nil
}

// SaveUserStats 写回用户统计
func (s *Store) SaveUserStats(ctx context.Context, userID uint, stats engine.UserStats) error {
	res := s.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"total_habits":      stats.TotalHabits,
			"total_completions": stats.TotalCompletions,
			"current_streak":    stats.CurrentStreak,
			"longest_streak":    stats.LongestStreak,
			"stats_computed_at": s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("save user stats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return engine.ErrUserNotFound
	}
	return nil
}

// Habit 返回习惯快照
func (s *Store) Habit(ctx context.Context, id uint) (engine.Habit, error) {
	var habit db.Habit
	if err := s.db.WithContext(ctx).First(&habit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Habit{}, engine.ErrHabitNotFound
		}
		return engine.Habit{}, fmt.Errorf("get habit: %w", err)
	}
	return toHabit(habit), nil
}

// Category 返回分类快照
func (s *Store) Category(ctx context.Context, id uint) (engine.Category, error) {
	var category db.Category
	if err := s.db.WithContext(ctx).First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.Category{}, engine.ErrCategoryNotFound
		}
		return engine.Category{}, fmt.Errorf("get category: %w", err)
	}
	return toCategory(category), nil
}

// User 返回用户快照
func (s *Store) User(ctx context.Context, id uint) (engine.User, error) {
	var user db.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.User{}, engine.ErrUserNotFound
		}
		return engine.User{}, fmt.Errorf("get user: %w", err)
	}
	return toUser(user), nil
}

// HabitsByCategory 返回分类下全部习惯（含 inactive）
func (s *Store) HabitsByCategory(ctx context.Context, categoryID uint) ([]engine.Habit, error) {
	return s.findHabits(ctx, "category_id = ?", categoryID)
}

// HabitsByUser 返回用户的全部习惯（含 inactive）
func (s *Store) HabitsByUser(ctx context.Context, userID uint) ([]engine.Habit, error) {
	return s.findHabits(ctx, "user_id = ?", userID)
}

func (s *Store) findHabits(ctx context.Context, cond string, arg uint) ([]engine.Habit, error) {
	var rows []db.Habit
	if err := s.db.WithContext(ctx).Where(cond, arg).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	habits := make([]engine.Habit, 0, len(rows))
	for _, row := range rows {
		habits = append(habits, toHabit(row))
	}
	return habits, nil
}

// CategoriesByUser 返回用户的全部分类
func (s *Store) CategoriesByUser(ctx context.Context, userID uint) ([]engine.Category, error) {
	var rows []db.Category
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	categories := make([]engine.Category, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, toCategory(row))
	}
	return categories, nil
}
