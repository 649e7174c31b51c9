package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示操作引用的对象不存在，由调用方决定如何响应
	ErrNotFound = errors.New("not found")
	// ErrHabitNotFound 习惯不存在
	ErrHabitNotFound = fmt.Errorf("habit %w", ErrNotFound)
	// ErrCategoryNotFound 分类不存在
	ErrCategoryNotFound = fmt.Errorf("category %w", ErrNotFound)
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrLogNotFound 打卡记录不存在
	ErrLogNotFound = fmt.Errorf("habit log %w", ErrNotFound)

	// ErrInvalidRange 日期区间非法（缺失、倒置或过大），查询前即拒绝
	ErrInvalidRange = errors.New("invalid date range")
	// ErrConcurrentModification 统计写回时发现日志集合已被并发修改
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrComputationSkipped 依赖层的重算被延后到下次读取
	ErrComputationSkipped = errors.New("computation skipped")
	// ErrUnknownAnalytics 不支持的分析类型
	ErrUnknownAnalytics = errors.New("unknown analytics kind")
)

// SkippedComputation 描述一次被延后的依赖层重算。
// 它实现 error 以便 errors.Is(s, ErrComputationSkipped)，但不会作为失败返回。
type SkippedComputation struct {
	Level  Level  `json:"level"`
	ID     uint   `json:"id"`
	Reason string `json:"reason"`
}

func (s SkippedComputation) Error() string {
	return fmt.Sprintf("%s %d: %s (%s)", s.Level, s.ID, ErrComputationSkipped, s.Reason)
}

func (s SkippedComputation) Unwrap() error {
	return ErrComputationSkipped
}

// SaveError 表示聚合结果已经算出但写回失败。
// Result 保留新鲜的计算结果，调用方可通过 Engine.RetrySave 重试写回而无需重算。
type SaveError struct {
	Level  Level
	ID     uint
	Result any
	Err    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s %d stats: %v", e.Level, e.ID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
