package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/service"
)

type categoryPayload struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Icon   string `json:"icon"`
}

// ListCategories 返回分类列表，可按 user_id 过滤
func (a *API) ListCategories(c *gin.Context) {
	userID, err := parseUintQuery(c, "user_id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	categories, err := a.categories.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取分类列表失败")
		return
	}

	items := make([]gin.H, 0, len(categories))
	for _, category := range categories {
		items = append(items, categoryToPayload(category))
	}
	respondSuccess(c, http.StatusOK, gin.H{"categories": items})
}

// GetCategory 返回单个分类
func (a *API) GetCategory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的分类ID")
		return
	}

	category, err := a.categories.Get(c.Request.Context(), id)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"category": categoryToPayload(*category)})
}

// CreateCategory 创建分类
func (a *API) CreateCategory(c *gin.Context) {
	var payload categoryPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	category, err := a.categories.Create(c.Request.Context(), service.CategoryInput(payload))
	if err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"category": categoryToPayload(*category)})
}

// UpdateCategory 更新分类
func (a *API) UpdateCategory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的分类ID")
		return
	}

	var payload categoryPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	category, err := a.categories.Update(c.Request.Context(), id, service.CategoryInput(payload))
	if err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"category": categoryToPayload(*category)})
}

// DeleteCategory 删除分类及其习惯与打卡记录
func (a *API) DeleteCategory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的分类ID")
		return
	}

	skipped, err := a.categories.Delete(c.Request.Context(), id)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": true, "skipped": skipped})
}

func categoryToPayload(category db.Category) gin.H {
	item := gin.H{
		"id":      category.ID,
		"user_id": category.UserID,
		"name":    category.Name,
		"color":   category.Color,
		"icon":    category.Icon,
		"stats": gin.H{
			"total_habits":    category.TotalHabits,
			"active_habits":   category.ActiveHabits,
			"completion_rate": category.CompletionRate,
		},
		"stats_stale": category.StatsDirty,
	}
	if category.StatsComputedAt != nil {
		item["stats_computed_at"] = category.StatsComputedAt.Format(time.RFC3339)
	}
	return item
}
