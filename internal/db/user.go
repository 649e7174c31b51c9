package db

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// User 定义了用户模型
// 认证由外部系统负责，这里只保留归属关系与统计缓存
type User struct {
	gorm.Model
	Username string `gorm:"unique;not null"`
	Email    string
	Timezone string

	TotalHabits      int
	TotalCompletions int
	CurrentStreak    int
	LongestStreak    int
	StatsDirty       bool
	StatsComputedAt  *time.Time
}

// EnsureUser 存在性检查：若用户名非空且不存在对应账号，则创建一个默认用户并返回。
func EnsureUser(username, email string) (*User, error) {
	trimmedUser := strings.TrimSpace(username)
	if trimmedUser == "" {
		return nil, nil
	}

	if DB == nil {
		return nil, errors.New("database not initialized")
	}

	var existing User
	if err := DB.Where("username = ?", trimmedUser).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		created := User{Username: trimmedUser, Email: strings.TrimSpace(email), Timezone: "UTC"}
		if err := DB.Create(&created).Error; err != nil {
			return nil, err
		}
		return &created, nil
	}

	return &existing, nil
}
