package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/streak"
	"gorm.io/gorm"
)

// HabitService 负责 Habit 数据的增删改查
// FrequencyUnit 支持 daily/weekly/monthly，FrequencyCount>0
// TargetType 支持 boolean/number/duration，非 boolean 时 TargetValue>0
// Status 仅使用 active/inactive，默认 active
// 影响归属或启用状态的变更会使对应分类与用户的统计失效

type HabitService struct {
	db     *gorm.DB
	engine *engine.Engine
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	UserID     uint
	CategoryID uint
	Status     string
	Search     string
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
	UserID         uint
	CategoryID     uint
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
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB, eng *engine.Engine) *HabitService {
	return &HabitService{db: gdb, engine: eng}
}

// List 返回习惯集合，支持基本筛选
func (s *HabitService) List(ctx context.Context, filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.WithContext(ctx).Model(&db.Habit{})

	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.CategoryID != 0 {
		query = query.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC, id DESC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	return habits, nil
}

// Get 根据 ID 获取习惯
func (s *HabitService) Get(ctx context.Context, id uint) (*db.Habit, error) {
	var habit db.Habit
	if err := s.db.WithContext(ctx).First(&habit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// Create 新建习惯
func (s *HabitService) Create(ctx context.Context, input HabitInput) (*db.Habit, []engine.SkippedComputation, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, nil, err
	}
	if err := s.checkOwnership(ctx, input.UserID, input.CategoryID); err != nil {
		return nil, nil, err
	}

	habit := db.Habit{
		UserID:     input.UserID,
		CategoryID: input.CategoryID,
	}
	applyHabitInput(&habit, input)

	if err := s.db.WithContext(ctx).Create(&habit).Error; err != nil {
		return nil, nil, fmt.Errorf("create habit: %w", err)
	}

	skipped := s.engine.InvalidateOwners(ctx, habit.UserID, habit.CategoryID)
	return &habit, skipped, nil
}

// Update 更新习惯；可移动到同一用户的其他分类
func (s *HabitService) Update(ctx context.Context, id uint, input HabitInput) (*db.Habit, []engine.SkippedComputation, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	previousCategory := existing.CategoryID
	if input.CategoryID != 0 && input.CategoryID != existing.CategoryID {
		if err := s.checkOwnership(ctx, existing.UserID, input.CategoryID); err != nil {
			return nil, nil, err
		}
		existing.CategoryID = input.CategoryID
	}
	applyHabitInput(existing, input)

	// 统计缓存与 version 由引擎维护，这里只写资料字段
	if err := s.db.WithContext(ctx).Model(existing).Select(
		"category_id", "name", "description", "target_type", "target_value", "target_unit",
		"frequency_unit", "frequency_count", "status", "start_date", "end_date",
	).Updates(existing).Error; err != nil {
		return nil, nil, fmt.Errorf("update habit: %w", err)
	}

	skipped := s.engine.InvalidateOwners(ctx, existing.UserID, previousCategory, existing.CategoryID)
	return existing, skipped, nil
}

// Delete 删除习惯及其打卡记录
func (s *HabitService) Delete(ctx context.Context, id uint) ([]engine.SkippedComputation, error) {
	var habit db.Habit

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&habit, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHabitNotFound
			}
			return fmt.Errorf("find habit: %w", err)
		}
		if err := tx.Where("habit_id = ?", id).Delete(&db.HabitLog{}).Error; err != nil {
			return fmt.Errorf("delete habit logs: %w", err)
		}
		if err := tx.Unscoped().Delete(&db.Habit{}, id).Error; err != nil {
			return fmt.Errorf("delete habit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.engine.InvalidateOwners(ctx, habit.UserID, habit.CategoryID), nil
}

func (s *HabitService) checkOwnership(ctx context.Context, userID, categoryID uint) error {
	if err := userExists(ctx, s.db, userID); err != nil {
		return err
	}
	if categoryID == 0 {
		return invalid("category id is required")
	}

	var category db.Category
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&category, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("find category: %w", err)
	}
	if category.UserID != userID {
		return invalid("category %d does not belong to user %d", categoryID, userID)
	}
	return nil
}

func applyHabitInput(habit *db.Habit, input HabitInput) {
	habit.Name = strings.TrimSpace(input.Name)
	habit.Description = strings.TrimSpace(input.Description)
	habit.TargetType = normalizeTargetType(input.TargetType)
	habit.TargetValue = input.TargetValue
	habit.TargetUnit = strings.TrimSpace(input.TargetUnit)
	habit.FrequencyUnit = strings.TrimSpace(strings.ToLower(input.FrequencyUnit))
	habit.FrequencyCount = input.FrequencyCount
	habit.Status = normalizeStatus(input.Status)
	habit.StartDate = input.StartDate
	habit.EndDate = input.EndDate
	if habit.TargetType == string(engine.TargetBoolean) {
		habit.TargetValue = 0
		habit.TargetUnit = ""
	}
}

func validateHabitInput(input HabitInput) error {
	unit := strings.TrimSpace(strings.ToLower(input.FrequencyUnit))
	if unit != "daily" && unit != "weekly" && unit != "monthly" {
		return fmt.Errorf("%w: unsupported unit %s", ErrHabitInvalidFrequency, input.FrequencyUnit)
	}

	if input.FrequencyCount <= 0 {
		return fmt.Errorf("%w: count must be positive", ErrHabitInvalidFrequency)
	}

	switch engine.TargetType(normalizeTargetType(input.TargetType)) {
	case engine.TargetBoolean:
	case engine.TargetNumber, engine.TargetDuration:
		if input.TargetValue <= 0 {
			return fmt.Errorf("%w: goal must be positive for %s targets", ErrHabitInvalidTarget, input.TargetType)
		}
	default:
		return fmt.Errorf("%w: unsupported type %s", ErrHabitInvalidTarget, input.TargetType)
	}

	if strings.TrimSpace(input.Name) == "" {
		return invalid("habit name is required")
	}

	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return invalid("end date before start date")
	}

	return nil
}

func normalizeTargetType(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return string(engine.TargetBoolean)
	}
	return raw
}

func normalizeStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != "inactive" {
		return "active"
	}
	return "inactive"
}

// HabitLogService 负责打卡校验，写入与级联交给引擎
type HabitLogService struct {
	db     *gorm.DB
	engine *engine.Engine
	now    func() time.Time
}

// HabitLogInput 定义打卡时的输入对象
type HabitLogInput struct {
	HabitID     uint
	LogDate     time.Time
	Completed   bool
	Value       *float64
	Unit        string
	Mood        string
	Difficulty  string
	CompletedAt *time.Time
	Source      string
	Note        string
}

// HabitLogFilter 指定查询区间
type HabitLogFilter struct {
	HabitID uint
	Start   time.Time
	End     time.Time
}

var (
	validMoods        = []string{"great", "good", "okay", "bad", "terrible"}
	validDifficulties = []string{"easy", "medium", "hard"}
)

// NewHabitLogService 构造 HabitLogService
func NewHabitLogService(gdb *gorm.DB, eng *engine.Engine) *HabitLogService {
	return &HabitLogService{db: gdb, engine: eng, now: time.Now}
}

// WithClock 替换当前时间来源，用于测试
func (s *HabitLogService) WithClock(now func() time.Time) *HabitLogService {
	if now != nil {
		s.now = now
	}
	return s
}

// Upsert 处理幂等打卡逻辑：若当天已有记录则覆盖，否则创建
func (s *HabitLogService) Upsert(ctx context.Context, input HabitLogInput) (*engine.MutationReport, error) {
	if input.HabitID == 0 {
		return nil, invalid("habit id is required")
	}
	if input.LogDate.IsZero() {
		return nil, invalid("log date is required")
	}

	mood, err := oneOf("mood", input.Mood, validMoods)
	if err != nil {
		return nil, err
	}
	difficulty, err := oneOf("difficulty", input.Difficulty, validDifficulties)
	if err != nil {
		return nil, err
	}
	if input.Value != nil && *input.Value < 0 {
		return nil, invalid("value must not be negative")
	}

	logDate := streak.Normalize(input.LogDate)
	if logDate.After(streak.Normalize(s.now().UTC())) {
		return nil, invalid("log date %s is in the future", logDate.Format("2006-01-02"))
	}

	entry := engine.LogEntry{
		HabitID:    input.HabitID,
		Date:       logDate,
		Completed:  input.Completed,
		Value:      input.Value,
		Unit:       strings.TrimSpace(input.Unit),
		Mood:       mood,
		Difficulty: difficulty,
		Source:     strings.TrimSpace(input.Source),
		Note:       sanitizeNote(input.Note),
	}
	if entry.Source == "" {
		entry.Source = "manual"
	}
	if entry.Completed {
		completedAt := s.now().UTC()
		if input.CompletedAt != nil {
			completedAt = input.CompletedAt.UTC()
		}
		entry.CompletedAt = &completedAt
	}

	return s.engine.UpsertLog(ctx, entry)
}

// Delete 删除指定打卡记录；记录必须属于该习惯
func (s *HabitLogService) Delete(ctx context.Context, habitID, logID uint) (*engine.MutationReport, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&db.HabitLog{}).
		Where("id = ? AND habit_id = ?", logID, habitID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("find habit log: %w", err)
	}
	if count == 0 {
		return nil, ErrLogNotFound
	}

	return s.engine.DeleteLog(ctx, habitID, logID)
}

// ListBetween 返回指定区间内的打卡记录
func (s *HabitLogService) ListBetween(ctx context.Context, filter HabitLogFilter) ([]db.HabitLog, error) {
	var logs []db.HabitLog

	if filter.HabitID == 0 {
		return nil, invalid("habit id is required")
	}

	start := streak.Normalize(filter.Start)
	end := streak.Normalize(filter.End)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", engine.ErrInvalidRange, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&db.Habit{}).Where("id = ?", filter.HabitID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("find habit: %w", err)
	}
	if count == 0 {
		return nil, ErrHabitNotFound
	}

	if err := s.db.WithContext(ctx).Where("habit_id = ?", filter.HabitID).
		Where("log_date BETWEEN ? AND ?", start, end).
		Order("log_date ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list habit logs: %w", err)
	}

	return logs, nil
}

func oneOf(field, value string, allowed []string) (string, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "", nil
	}
	for _, candidate := range allowed {
		if candidate == value {
			return value, nil
		}
	}
	return "", invalid("unsupported %s %s", field, value)
}
