package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"gorm.io/gorm"
)

// CategoryService 负责分类的增删改查
// 删除分类会级联删除其下习惯与打卡记录，并使所属用户的统计失效
type CategoryService struct {
	db     *gorm.DB
	engine *engine.Engine
}

// CategoryInput 定义创建/更新分类时可配置字段
type CategoryInput struct {
	UserID uint
	Name   string
	Color  string
	Icon   string
}

// NewCategoryService 构造 CategoryService
func NewCategoryService(gdb *gorm.DB, eng *engine.Engine) *CategoryService {
	return &CategoryService{db: gdb, engine: eng}
}

// List 返回用户的分类，userID 为 0 时返回全部
func (s *CategoryService) List(ctx context.Context, userID uint) ([]db.Category, error) {
	var categories []db.Category
	query := s.db.WithContext(ctx).Model(&db.Category{})
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Order("id ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// Get 根据 ID 获取分类
func (s *CategoryService) Get(ctx context.Context, id uint) (*db.Category, error) {
	var category db.Category
	if err := s.db.WithContext(ctx).First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &category, nil
}

// Create 新建分类，新分类的统计在首次读取时计算
func (s *CategoryService) Create(ctx context.Context, input CategoryInput) (*db.Category, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, invalid("category name is required")
	}
	if err := userExists(ctx, s.db, input.UserID); err != nil {
		return nil, err
	}

	category := db.Category{
		UserID:     input.UserID,
		Name:       strings.TrimSpace(input.Name),
		Color:      strings.TrimSpace(input.Color),
		Icon:       strings.TrimSpace(input.Icon),
		StatsDirty: true,
	}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &category, nil
}

// Update 更新分类展示信息，归属用户不可变更
func (s *CategoryService) Update(ctx context.Context, id uint, input CategoryInput) (*db.Category, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, invalid("category name is required")
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Color = strings.TrimSpace(input.Color)
	existing.Icon = strings.TrimSpace(input.Icon)

	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	return existing, nil
}

// Delete 删除分类及其习惯与打卡记录
func (s *CategoryService) Delete(ctx context.Context, id uint) ([]engine.SkippedComputation, error) {
	var userID uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category db.Category
		if err := tx.First(&category, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return fmt.Errorf("find category: %w", err)
		}
		userID = category.UserID

		habitIDs := tx.Model(&db.Habit{}).Select("id").Where("category_id = ?", id)
		if err := tx.Where("habit_id IN (?)", habitIDs).Delete(&db.HabitLog{}).Error; err != nil {
			return fmt.Errorf("delete category logs: %w", err)
		}
		if err := tx.Unscoped().Where("category_id = ?", id).Delete(&db.Habit{}).Error; err != nil {
			return fmt.Errorf("delete category habits: %w", err)
		}
		if err := tx.Unscoped().Delete(&db.Category{}, id).Error; err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.engine.InvalidateOwners(ctx, userID), nil
}

func userExists(ctx context.Context, gdb *gorm.DB, id uint) error {
	if id == 0 {
		return invalid("user id is required")
	}
	var count int64
	if err := gdb.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
