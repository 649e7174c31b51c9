package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/service"
)

type userPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

// ListUsers 返回用户列表
func (a *API) ListUsers(c *gin.Context) {
	users, err := a.users.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取用户列表失败")
		return
	}

	items := make([]gin.H, 0, len(users))
	for _, user := range users {
		items = append(items, userToPayload(user))
	}
	respondSuccess(c, http.StatusOK, gin.H{"users": items})
}

// GetUser 返回单个用户
func (a *API) GetUser(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	user, err := a.users.Get(c.Request.Context(), id)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": userToPayload(*user)})
}

// CreateUser 创建用户
func (a *API) CreateUser(c *gin.Context) {
	var payload userPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	user, err := a.users.Create(c.Request.Context(), service.UserInput(payload))
	if err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"user": userToPayload(*user)})
}

// UpdateUser 更新用户资料
func (a *API) UpdateUser(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	var payload userPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	user, err := a.users.Update(c.Request.Context(), id, service.UserInput(payload))
	if err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": userToPayload(*user)})
}

// DeleteUser 删除用户及其全部数据
func (a *API) DeleteUser(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	if err := a.users.Delete(c.Request.Context(), id); err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": true})
}

func userToPayload(user db.User) gin.H {
	item := gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"timezone": user.Timezone,
		"stats": gin.H{
			"total_habits":      user.TotalHabits,
			"total_completions": user.TotalCompletions,
			"current_streak":    user.CurrentStreak,
			"longest_streak":    user.LongestStreak,
		},
		"stats_stale": user.StatsDirty,
	}
	if user.StatsComputedAt != nil {
		item["stats_computed_at"] = user.StatsComputedAt.Format(time.RFC3339)
	}
	return item
}
