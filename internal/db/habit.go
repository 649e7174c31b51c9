package db

import (
	"time"

	"gorm.io/gorm"
)

// Habit 定义了习惯模型
// 频率通过 FrequencyUnit/FrequencyCount 描述，例如 unit=daily/count=1
// TargetType 为 boolean/number/duration，非 boolean 时 TargetValue/TargetUnit 描述每日目标
// Streak*/统计字段均为缓存，可随时由打卡日志重新计算
// Version 用于乐观并发控制：每次打卡变更或统计写回都会递增
type Habit struct {
	gorm.Model
	UserID         uint `gorm:"index"`
	CategoryID     uint `gorm:"index"`
	Name           string
	Description    string
	TargetType     string
	TargetValue    float64
	TargetUnit     string
	FrequencyUnit  string
	FrequencyCount int
	Status         string
	StartDate      *time.Time
	EndDate        *time.Time

	StreakCurrent       int
	StreakLongest       int
	StreakLastCompleted *time.Time

	TotalCompletions int
	CompletionRate   int
	AverageValue     float64
	BestStreak       int
	StatsComputedAt  *time.Time

	Version int `gorm:"not null;default:0"`
}

// HabitLog 记录习惯打卡日志
// Habit + LogDate 采用唯一索引，保证幂等；LogDate 统一为 UTC 零点
// CompletedAt 仅在 Completed=true 时有值
// 日志不做软删除，避免唯一索引与已删除记录冲突
type HabitLog struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	HabitID     uint      `gorm:"index;index:idx_habit_log_unique,unique"`
	UserID      uint      `gorm:"index"`
	LogDate     time.Time `gorm:"index;index:idx_habit_log_unique,unique"`
	Completed   bool
	Value       *float64
	Unit        string
	Mood        string
	Difficulty  string
	CompletedAt *time.Time
	Source      string
	Note        string
}

// TableName 重写确保唯一索引作用到 habit_id + log_date
func (HabitLog) TableName() string {
	return "habit_logs"
}
