package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/service"
)

const dateFormat = "2006-01-02"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func respondSuccess(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

func parseUintQuery(c *gin.Context, key string) (uint, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

func parseUintQuerySlice(values []string) []uint {
	ids := make([]uint, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			parsed, err := strconv.ParseUint(trimmed, 10, 32)
			if err != nil {
				continue
			}
			ids = append(ids, uint(parsed))
		}
	}
	return ids
}

// parseOptionalDate 解析 2006-01-02，空字符串返回 nil
func parseOptionalDate(value string) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}

	t, err := time.ParseInLocation(dateFormat, value, time.UTC)
	if err != nil {
		return nil, false
	}

	return &t, true
}

func formatOptionalDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateFormat)
}

// handleEngineError 将引擎与服务层错误映射为 HTTP 状态码
func handleEngineError(c *gin.Context, err error) {
	var saveErr *engine.SaveError

	switch {
	case errors.Is(err, engine.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, engine.ErrCategoryNotFound):
		respondError(c, http.StatusNotFound, "分类不存在")
	case errors.Is(err, engine.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "用户不存在")
	case errors.Is(err, engine.ErrLogNotFound):
		respondError(c, http.StatusNotFound, "打卡记录不存在")
	case errors.Is(err, engine.ErrNotFound):
		respondError(c, http.StatusNotFound, "资源不存在")
	case errors.Is(err, engine.ErrInvalidRange):
		respondError(c, http.StatusBadRequest, "日期区间无效")
	case errors.Is(err, engine.ErrUnknownAnalytics):
		respondError(c, http.StatusBadRequest, "不支持的分析类型")
	case errors.Is(err, service.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrConcurrentModification):
		respondError(c, http.StatusConflict, "统计正在被并发更新，请重试")
	case errors.As(err, &saveErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存统计失败", "result": saveErr.Result})
	default:
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "服务器内部错误")
	}
}
