package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/engine"
)

// GetCategoryStats 读取分类统计；过期时先重算
func (a *API) GetCategoryStats(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的分类ID")
		return
	}

	result, err := a.stats.CategoryStats(c.Request.Context(), id)
	if err != nil {
		a.respondStatsError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// RecomputeCategoryStats 显式重算分类统计
func (a *API) RecomputeCategoryStats(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的分类ID")
		return
	}

	result, err := a.stats.RecomputeCategoryStats(c.Request.Context(), id)
	if err != nil {
		a.respondStatsError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// GetUserStats 读取用户统计；过期时先重算
func (a *API) GetUserStats(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	result, err := a.stats.UserStats(c.Request.Context(), id)
	if err != nil {
		a.respondStatsError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// RecomputeUserStats 显式重算用户统计
func (a *API) RecomputeUserStats(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	result, err := a.stats.RecomputeUserStats(c.Request.Context(), id)
	if err != nil {
		a.respondStatsError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// QueryUserAnalytics 对用户日志执行只读分析
// 支持 start/end（2006-01-02）、limit 与可重复的 habit_id 参数
func (a *API) QueryUserAnalytics(c *gin.Context) {
	userID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	kind := engine.AnalyticsKind(strings.ToLower(c.Param("kind")))

	var params engine.AnalyticsParams
	if start, ok := parseOptionalDate(c.Query("start")); !ok {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return
	} else if start != nil {
		params.Start = *start
	}
	if end, ok := parseOptionalDate(c.Query("end")); !ok {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return
	} else if end != nil {
		params.End = *end
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(c, http.StatusBadRequest, "limit 应为正整数")
			return
		}
		params.Limit = limit
	}
	params.HabitIDs = parseUintQuerySlice(c.QueryArray("habit_id"))

	result, err := a.stats.QueryAnalytics(c.Request.Context(), userID, kind, params)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

func (a *API) respondStatsError(c *gin.Context, err error) {
	if recovered, ok := a.retrySave(c.Request.Context(), err); ok {
		respondSuccess(c, http.StatusOK, recovered)
		return
	}
	handleEngineError(c, err)
}
