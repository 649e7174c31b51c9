package engine

import (
	"time"

	"github.com/streaklog/internal/streak"
)

// Level 标识聚合层级
type Level string

const (
	LevelHabit    Level = "habit"
	LevelCategory Level = "category"
	LevelUser     Level = "user"
)

// TargetType 习惯目标类型
type TargetType string

const (
	TargetBoolean  TargetType = "boolean"
	TargetNumber   TargetType = "number"
	TargetDuration TargetType = "duration"
)

// WatermarkPolicy 决定 bestStreak/longestStreak 是否允许在重算时下降
type WatermarkPolicy string

const (
	// WatermarkMonotonic 取 max(已存值, 新计算值)，删除日志也不会降低水位
	WatermarkMonotonic WatermarkPolicy = "monotonic"
	// WatermarkCorrecting 以新计算值为准，删除日志后水位可以下降
	WatermarkCorrecting WatermarkPolicy = "correcting"
)

// ParseWatermarkPolicy 解析配置值，未知值回退为 monotonic
func ParseWatermarkPolicy(raw string) WatermarkPolicy {
	if WatermarkPolicy(raw) == WatermarkCorrecting {
		return WatermarkCorrecting
	}
	return WatermarkMonotonic
}

// LogEntry 为单个习惯某一天的打卡记录，(HabitID, Date) 唯一
type LogEntry struct {
	ID          uint       `json:"id"`
	HabitID     uint       `json:"habit_id"`
	UserID      uint       `json:"user_id"`
	Date        time.Time  `json:"date"`
	Completed   bool       `json:"completed"`
	Value       *float64   `json:"value,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	Mood        string     `json:"mood,omitempty"`
	Difficulty  string     `json:"difficulty,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Note        string     `json:"note,omitempty"`
	Source      string     `json:"source,omitempty"`
}

// HabitStats 习惯层统计缓存
type HabitStats struct {
	TotalCompletions int     `json:"total_completions"`
	CompletionRate   int     `json:"completion_rate"`
	AverageValue     float64 `json:"average_value"`
	BestStreak       int     `json:"best_streak"`
}

// Habit 为引擎所需的习惯快照
type Habit struct {
	ID         uint
	UserID     uint
	CategoryID uint
	Name       string
	TargetType TargetType
	Active     bool
	CreatedAt  time.Time
	Streak     streak.Result
	Stats      HabitStats
	Version    int
}

// CategoryStats 分类层统计缓存
type CategoryStats struct {
	TotalHabits    int `json:"total_habits"`
	ActiveHabits   int `json:"active_habits"`
	CompletionRate int `json:"completion_rate"`
}

// Category 为引擎所需的分类快照
type Category struct {
	ID     uint
	UserID uint
	Name   string
	Stats  CategoryStats
}

// UserStats 用户层统计缓存
type UserStats struct {
	TotalHabits      int `json:"total_habits"`
	TotalCompletions int `json:"total_completions"`
	CurrentStreak    int `json:"current_streak"`
	LongestStreak    int `json:"longest_streak"`
}

// User 为引擎所需的用户快照
type User struct {
	ID    uint
	Stats UserStats
}

// HabitResult 为一次习惯重算的输出
type HabitResult struct {
	HabitID uint          `json:"habit_id"`
	Streak  streak.Result `json:"streak"`
	Stats   HabitStats    `json:"stats"`
	Version int           `json:"version"`
}

// CategoryResult 为一次分类重算（或读取）的输出
type CategoryResult struct {
	CategoryID uint          `json:"category_id"`
	Stats      CategoryStats `json:"stats"`
	Recomputed bool          `json:"recomputed"`
}

// UserResult 为一次用户重算（或读取）的输出
type UserResult struct {
	UserID     uint      `json:"user_id"`
	Stats      UserStats `json:"stats"`
	Recomputed bool      `json:"recomputed"`
}

// MutationReport 汇总一次日志变更触发的级联
type MutationReport struct {
	RunID   string               `json:"run_id"`
	Log     LogEntry             `json:"log"`
	Deleted bool                 `json:"deleted"`
	Habit   HabitResult          `json:"habit"`
	Skipped []SkippedComputation `json:"skipped"`
}
