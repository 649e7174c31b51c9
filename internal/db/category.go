package db

import (
	"time"

	"gorm.io/gorm"
)

// Category 归属于单个用户，包含若干习惯
// 统计字段为缓存，StatsDirty 表示下游习惯已变更、读取时需要重新计算
type Category struct {
	gorm.Model
	UserID uint `gorm:"index"`
	Name   string
	Color  string
	Icon   string

	TotalHabits     int
	ActiveHabits    int
	CompletionRate  int
	StatsDirty      bool
	StatsComputedAt *time.Time
}
