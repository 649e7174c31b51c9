package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"gorm.io/gorm"
)

// GormInvalidator 使用 categories/users 表上的 stats_dirty 列记录过期状态
type GormInvalidator struct {
	db *gorm.DB
}

var _ engine.Invalidator = (*GormInvalidator)(nil)

// NewGormInvalidator 构造基于数据库的失效标记
func NewGormInvalidator(gdb *gorm.DB) *GormInvalidator {
	return &GormInvalidator{db: gdb}
}

func dirtyModel(level engine.Level) (any, error) {
	switch level {
	case engine.LevelCategory:
		return &db.Category{}, nil
	case engine.LevelUser:
		return &db.User{}, nil
	default:
		return nil, fmt.Errorf("dirty flag not supported for level %q", level)
	}
}

func (g *GormInvalidator) setDirty(ctx context.Context, level engine.Level, id uint, dirty bool) error {
	model, err := dirtyModel(level)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Model(model).
		Where("id = ?", id).
		UpdateColumn("stats_dirty", dirty).Error; err != nil {
		return fmt.Errorf("set %s dirty flag: %w", level, err)
	}
	return nil
}

// MarkDirty 标记为过期
func (g *GormInvalidator) MarkDirty(ctx context.Context, level engine.Level, id uint) error {
	return g.setDirty(ctx, level, id, true)
}

// ClearDirty 清除过期标记
func (g *GormInvalidator) ClearDirty(ctx context.Context, level engine.Level, id uint) error {
	return g.setDirty(ctx, level, id, false)
}

// IsDirty 读取过期标记，记录不存在时视为未过期
func (g *GormInvalidator) IsDirty(ctx context.Context, level engine.Level, id uint) (bool, error) {
	model, err := dirtyModel(level)
	if err != nil {
		return false, err
	}
	var flags []bool
	if err := g.db.WithContext(ctx).Model(model).
		Where("id = ?", id).
		Limit(1).
		Pluck("stats_dirty", &flags).Error; err != nil {
		return false, fmt.Errorf("read %s dirty flag: %w", level, err)
	}
	return len(flags) > 0 && flags[0], nil
}

// RedisInvalidator 把过期集合放在 Redis，多实例部署时共享
// 每个层级一个 set：<prefix>:dirty:<level>
type RedisInvalidator struct {
	client *redis.Client
	prefix string
}

var _ engine.Invalidator = (*RedisInvalidator)(nil)

// NewRedisInvalidator 构造基于 Redis 的失效标记，prefix 为空时使用 streaklog
func NewRedisInvalidator(client *redis.Client, prefix string) *RedisInvalidator {
	if prefix == "" {
		prefix = "streaklog"
	}
	return &RedisInvalidator{client: client, prefix: prefix}
}

func (r *RedisInvalidator) key(level engine.Level) string {
	return r.prefix + ":dirty:" + string(level)
}

func member(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// MarkDirty 标记为过期
func (r *RedisInvalidator) MarkDirty(ctx context.Context, level engine.Level, id uint) error {
	if err := r.client.SAdd(ctx, r.key(level), member(id)).Err(); err != nil {
		return fmt.Errorf("mark %s %d dirty: %w", level, id, err)
	}
	return nil
}

// IsDirty 读取过期标记
func (r *RedisInvalidator) IsDirty(ctx context.Context, level engine.Level, id uint) (bool, error) {
	dirty, err := r.client.SIsMember(ctx, r.key(level), member(id)).Result()
	if err != nil {
		return false, fmt.Errorf("read %s %d dirty flag: %w", level, id, err)
	}
	return dirty, nil
}

// ClearDirty 清除过期标记
func (r *RedisInvalidator) ClearDirty(ctx context.Context, level engine.Level, id uint) error {
	if err := r.client.SRem(ctx, r.key(level), member(id)).Err(); err != nil {
		return fmt.Errorf("clear %s %d dirty flag: %w", level, id, err)
	}
	return nil
}
