package store

import (
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/streak"
)

// StatusActive 习惯启用状态
const StatusActive = "active"

func toEntry(row db.HabitLog) engine.LogEntry {
	return engine.LogEntry{
		ID:          row.ID,
		HabitID:     row.HabitID,
		UserID:      row.UserID,
		Date:        streak.Normalize(row.LogDate),
		Completed:   row.Completed,
		Value:       row.Value,
		Unit:        row.Unit,
		Mood:        row.Mood,
		Difficulty:  row.Difficulty,
		CompletedAt: row.CompletedAt,
		Note:        row.Note,
		Source:      row.Source,
	}
}

func toEntries(rows []db.HabitLog) []engine.LogEntry {
	entries := make([]engine.LogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	return entries
}

func toHabit(row db.Habit) engine.Habit {
	return engine.Habit{
		ID:         row.ID,
		UserID:     row.UserID,
		CategoryID: row.CategoryID,
		Name:       row.Name,
		TargetType: engine.TargetType(row.TargetType),
		Active:     row.Status == StatusActive,
		CreatedAt:  row.CreatedAt,
		Streak: streak.Result{
			Current:       row.StreakCurrent,
			Longest:       row.StreakLongest,
			LastCompleted: row.StreakLastCompleted,
		},
		Stats: engine.HabitStats{
			TotalCompletions: row.TotalCompletions,
			CompletionRate:   row.CompletionRate,
			AverageValue:     row.AverageValue,
			BestStreak:       row.BestStreak,
		},
		Version: row.Version,
	}
}

func toCategory(row db.Category) engine.Category {
	return engine.Category{
		ID:     row.ID,
		UserID: row.UserID,
		Name:   row.Name,
		Stats: engine.CategoryStats{
			TotalHabits:    row.TotalHabits,
			ActiveHabits:   row.ActiveHabits,
			CompletionRate: row.CompletionRate,
		},
	}
}

func toUser(row db.User) engine.User {
	return engine.User{
		ID: row.ID,
		Stats: engine.UserStats{
			TotalHabits:      row.TotalHabits,
			TotalCompletions: row.TotalCompletions,
			CurrentStreak:    row.CurrentStreak,
			LongestStreak:    row.LongestStreak,
		},
	}
}
