package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streaklog/internal/db"
	"gorm.io/gorm"
)

// UserService 负责用户的增删改查
// 删除用户会级联删除其分类、习惯与打卡记录
type UserService struct {
	db *gorm.DB
}

// UserInput 定义创建/更新用户时可配置字段
type UserInput struct {
	Username string
	Email    string
	Timezone string
}

// NewUserService 构造 UserService
func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb}
}

// List 返回全部用户
func (s *UserService) List(ctx context.Context) ([]db.User, error) {
	var users []db.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Get 根据 ID 获取用户
func (s *UserService) Get(ctx context.Context, id uint) (*db.User, error) {
	var user db.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// Create 新建用户
func (s *UserService) Create(ctx context.Context, input UserInput) (*db.User, error) {
	if err := validateUserInput(input); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameFree(ctx, input.Username, 0); err != nil {
		return nil, err
	}

	user := db.User{
		Username: strings.TrimSpace(input.Username),
		Email:    strings.TrimSpace(input.Email),
		Timezone: normalizeTimezone(input.Timezone),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Update 更新用户资料，不影响统计缓存
func (s *UserService) Update(ctx context.Context, id uint, input UserInput) (*db.User, error) {
	if err := validateUserInput(input); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUsernameFree(ctx, input.Username, id); err != nil {
		return nil, err
	}

	existing.Username = strings.TrimSpace(input.Username)
	existing.Email = strings.TrimSpace(input.Email)
	existing.Timezone = normalizeTimezone(input.Timezone)

	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return existing, nil
}

// Delete 删除用户及其全部分类、习惯和打卡记录
func (s *UserService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user db.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("find user: %w", err)
		}

		if err := tx.Where("user_id = ?", id).Delete(&db.HabitLog{}).Error; err != nil {
			return fmt.Errorf("delete user logs: %w", err)
		}
		if err := tx.Unscoped().Where("user_id = ?", id).Delete(&db.Habit{}).Error; err != nil {
			return fmt.Errorf("delete user habits: %w", err)
		}
		if err := tx.Unscoped().Where("user_id = ?", id).Delete(&db.Category{}).Error; err != nil {
			return fmt.Errorf("delete user categories: %w", err)
		}
		if err := tx.Unscoped().Delete(&db.User{}, id).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func (s *UserService) ensureUsernameFree(ctx context.Context, username string, exceptID uint) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&db.User{}).Where("username = ?", strings.TrimSpace(username))
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return ErrUsernameTaken
	}
	return nil
}

func validateUserInput(input UserInput) error {
	if strings.TrimSpace(input.Username) == "" {
		return invalid("username is required")
	}
	if tz := strings.TrimSpace(input.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return invalid("unknown timezone %s", tz)
		}
	}
	return nil
}

func normalizeTimezone(tz string) string {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "UTC"
	}
	return tz
}
