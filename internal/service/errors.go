package service

import (
	"errors"
	"fmt"

	"github.com/streaklog/internal/engine"
)

// ErrInvalidInput 为所有输入校验失败的根错误，handler 映射为 400
var ErrInvalidInput = errors.New("invalid input")

var (
	// ErrHabitNotFound 在指定习惯不存在时返回
	ErrHabitNotFound = engine.ErrHabitNotFound
	// ErrCategoryNotFound 在指定分类不存在时返回
	ErrCategoryNotFound = engine.ErrCategoryNotFound
	// ErrUserNotFound 在指定用户不存在时返回
	ErrUserNotFound = engine.ErrUserNotFound
	// ErrLogNotFound 在打卡记录不存在或不属于该习惯时返回
	ErrLogNotFound = engine.ErrLogNotFound

	// ErrHabitInvalidFrequency 当频率配置异常时返回
	ErrHabitInvalidFrequency = fmt.Errorf("%w: invalid habit frequency configuration", ErrInvalidInput)
	// ErrHabitInvalidTarget 当目标类型或目标值异常时返回
	ErrHabitInvalidTarget = fmt.Errorf("%w: invalid habit target", ErrInvalidInput)
	// ErrUsernameTaken 用户名已被占用
	ErrUsernameTaken = fmt.Errorf("%w: username already taken", ErrInvalidInput)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
