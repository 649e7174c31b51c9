package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/service"
)

const defaultLogRangeDays = 30

type habitPayload struct {
	UserID         uint    `json:"user_id"`
	CategoryID     uint    `json:"category_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	TargetType     string  `json:"target_type"`
	TargetValue    float64 `json:"target_value"`
	TargetUnit     string  `json:"target_unit"`
	FrequencyUnit  string  `json:"frequency_unit"`
	FrequencyCount int     `json:"frequency_count"`
	Status         string  `json:"status"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
}

type habitLogPayload struct {
	LogDate     string   `json:"log_date"` // 2006-01-02
	Completed   bool     `json:"completed"`
	Value       *float64 `json:"value"`
	Unit        string   `json:"unit"`
	Mood        string   `json:"mood"`
	Difficulty  string   `json:"difficulty"`
	CompletedAt string   `json:"completed_at"` // RFC3339，可选
	Source      string   `json:"source"`
	Note        string   `json:"note"`
}

// ListHabits 返回习惯列表 JSON
func (a *API) ListHabits(c *gin.Context) {
	userID, err := parseUintQuery(c, "user_id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return
	}
	categoryID, err := parseUintQuery(c, "category_id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的分类ID")
		return
	}

	habits, err := a.habits.List(c.Request.Context(), service.HabitFilter{
		UserID:     userID,
		CategoryID: categoryID,
		Status:     c.Query("status"),
		Search:     c.Query("search"),
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取习惯列表失败")
		return
	}

	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}

	respondSuccess(c, http.StatusOK, gin.H{"habits": items})
}

// GetHabit 返回单个习惯详情
func (a *API) GetHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	habit, err := a.habits.Get(c.Request.Context(), id)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	payload := habitToPayload(*habit)
	if rendered, err := service.RenderDescription(habit.Description); err == nil {
		payload["description_html"] = rendered
	} else {
		a.logger.Warn("render habit description failed", "habit_id", habit.ID, "error", err)
	}

	respondSuccess(c, http.StatusOK, gin.H{"habit": payload})
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	input, ok := a.parseHabitInput(c)
	if !ok {
		return
	}

	habit, skipped, err := a.habits.Create(c.Request.Context(), input)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{"habit": habitToPayload(*habit), "skipped": skipped})
}

// UpdateHabit 更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	input, ok := a.parseHabitInput(c)
	if !ok {
		return
	}

	habit, skipped, err := a.habits.Update(c.Request.Context(), id, input)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"habit": habitToPayload(*habit), "skipped": skipped})
}

// DeleteHabit 删除习惯及其打卡记录
func (a *API) DeleteHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	skipped, err := a.habits.Delete(c.Request.Context(), id)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"deleted": true, "skipped": skipped})
}

// GetHabitStats 返回缓存的连胜与统计
func (a *API) GetHabitStats(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	habit, err := a.habits.Get(c.Request.Context(), id)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	payload := habitToPayload(*habit)
	respondSuccess(c, http.StatusOK, gin.H{
		"habit_id": habit.ID,
		"streak":   payload["streak"],
		"stats":    payload["stats"],
		"version":  habit.Version,
	})
}

// RecomputeHabitStats 从日志全量重算习惯统计
func (a *API) RecomputeHabitStats(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	result, err := a.stats.RecomputeHabitStats(c.Request.Context(), id)
	if err != nil {
		if recovered, ok := a.retrySave(c.Request.Context(), err); ok {
			respondSuccess(c, http.StatusOK, recovered)
			return
		}
		handleEngineError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result)
}

// ListHabitLogs 返回日期区间内的打卡记录，默认最近 30 天
func (a *API) ListHabitLogs(c *gin.Context) {
	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	start, end, ok := a.parseDateRange(c, defaultLogRangeDays)
	if !ok {
		return
	}

	logs, err := a.habitLogs.ListBetween(c.Request.Context(), service.HabitLogFilter{HabitID: habitID, Start: start, End: end})
	if err != nil {
		handleEngineError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"logs":  serializeHabitLogs(logs),
		"range": gin.H{"start": start.Format(dateFormat), "end": end.Format(dateFormat)},
	})
}

// UpsertHabitLog 按日期创建或覆盖打卡记录，并返回级联结果
func (a *API) UpsertHabitLog(c *gin.Context) {
	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	var payload habitLogPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	if payload.LogDate == "" {
		respondError(c, http.StatusBadRequest, "请选择打卡日期")
		return
	}

	logDate, err := time.ParseInLocation(dateFormat, payload.LogDate, time.UTC)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的打卡日期")
		return
	}

	var completedAt *time.Time
	if payload.CompletedAt != "" {
		parsed, err := time.Parse(time.RFC3339, payload.CompletedAt)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的完成时间")
			return
		}
		completedAt = &parsed
	}

	report, err := a.habitLogs.Upsert(c.Request.Context(), service.HabitLogInput{
		HabitID:     habitID,
		LogDate:     logDate,
		Completed:   payload.Completed,
		Value:       payload.Value,
		Unit:        payload.Unit,
		Mood:        payload.Mood,
		Difficulty:  payload.Difficulty,
		CompletedAt: completedAt,
		Source:      payload.Source,
		Note:        payload.Note,
	})
	if err != nil {
		handleEngineError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, mutationToPayload(report))
}

// DeleteHabitLog 删除单条打卡
func (a *API) DeleteHabitLog(c *gin.Context) {
	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	logID, err := parseUintParam(c, "logId")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的打卡记录ID")
		return
	}

	report, err := a.habitLogs.Delete(c.Request.Context(), habitID, logID)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, mutationToPayload(report))
}

func (a *API) parseHabitInput(c *gin.Context) (service.HabitInput, bool) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return service.HabitInput{}, false
	}

	startPtr, ok := parseOptionalDate(payload.StartDate)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return service.HabitInput{}, false
	}
	endPtr, ok := parseOptionalDate(payload.EndDate)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return service.HabitInput{}, false
	}

	if payload.FrequencyCount == 0 {
		respondError(c, http.StatusBadRequest, "目标频率不能为空")
		return service.HabitInput{}, false
	}

	return service.HabitInput{
		UserID:         payload.UserID,
		CategoryID:     payload.CategoryID,
		Name:           payload.Name,
		Description:    payload.Description,
		TargetType:     payload.TargetType,
		TargetValue:    payload.TargetValue,
		TargetUnit:     payload.TargetUnit,
		FrequencyUnit:  payload.FrequencyUnit,
		FrequencyCount: payload.FrequencyCount,
		Status:         payload.Status,
		StartDate:      startPtr,
		EndDate:        endPtr,
	}, true
}

// parseDateRange 解析 start/end 查询参数；缺省时以今天为终点向前 days 天
func (a *API) parseDateRange(c *gin.Context, days int) (time.Time, time.Time, bool) {
	startPtr, ok := parseOptionalDate(c.Query("start"))
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return time.Time{}, time.Time{}, false
	}
	endPtr, ok := parseOptionalDate(c.Query("end"))
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return time.Time{}, time.Time{}, false
	}

	now := a.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if endPtr != nil {
		end = *endPtr
	}
	start := end.AddDate(0, 0, -(days - 1))
	if startPtr != nil {
		start = *startPtr
	}
	return start, end, true
}

// retrySave 在统计已算出但写回失败时重试一次写回，成功则返回已算出的结果
func (a *API) retrySave(ctx context.Context, err error) (any, bool) {
	var saveErr *engine.SaveError
	if !errors.As(err, &saveErr) {
		return nil, false
	}
	if retryErr := a.stats.RetrySave(ctx, saveErr); retryErr != nil {
		a.logger.Warn("retry stats save failed", "level", saveErr.Level, "id", saveErr.ID, "error", retryErr)
		return nil, false
	}
	return saveErr.Result, true
}

func habitToPayload(habit db.Habit) gin.H {
	item := gin.H{
		"id":              habit.ID,
		"user_id":         habit.UserID,
		"category_id":     habit.CategoryID,
		"name":            habit.Name,
		"description":     habit.Description,
		"target_type":     habit.TargetType,
		"target_value":    habit.TargetValue,
		"target_unit":     habit.TargetUnit,
		"frequency_unit":  habit.FrequencyUnit,
		"frequency_count": habit.FrequencyCount,
		"status":          habit.Status,
		"streak": gin.H{
			"current":             habit.StreakCurrent,
			"longest":             habit.StreakLongest,
			"last_completed_date": formatOptionalDate(habit.StreakLastCompleted),
		},
		"stats": gin.H{
			"total_completions": habit.TotalCompletions,
			"completion_rate":   habit.CompletionRate,
			"average_value":     habit.AverageValue,
			"best_streak":       habit.BestStreak,
		},
	}

	if habit.StartDate != nil {
		item["start_date"] = habit.StartDate.Format(dateFormat)
	}
	if habit.EndDate != nil {
		item["end_date"] = habit.EndDate.Format(dateFormat)
	}
	if habit.StatsComputedAt != nil {
		item["stats_computed_at"] = habit.StatsComputedAt.Format(time.RFC3339)
	}

	return item
}

func serializeHabitLogs(logs []db.HabitLog) []gin.H {
	items := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		items = append(items, logToPayload(engine.LogEntry{
			ID:          log.ID,
			HabitID:     log.HabitID,
			UserID:      log.UserID,
			Date:        log.LogDate,
			Completed:   log.Completed,
			Value:       log.Value,
			Unit:        log.Unit,
			Mood:        log.Mood,
			Difficulty:  log.Difficulty,
			CompletedAt: log.CompletedAt,
			Source:      log.Source,
			Note:        log.Note,
		}))
	}
	return items
}

func logToPayload(entry engine.LogEntry) gin.H {
	payload := gin.H{
		"id":         entry.ID,
		"habit_id":   entry.HabitID,
		"user_id":    entry.UserID,
		"log_date":   entry.Date.UTC().Format(dateFormat),
		"completed":  entry.Completed,
		"value":      entry.Value,
		"unit":       entry.Unit,
		"mood":       entry.Mood,
		"difficulty": entry.Difficulty,
		"source":     entry.Source,
		"note":       strings.TrimSpace(entry.Note),
	}
	if entry.CompletedAt != nil {
		payload["completed_at"] = entry.CompletedAt.Format(time.RFC3339)
	}
	return payload
}

func mutationToPayload(report *engine.MutationReport) gin.H {
	return gin.H{
		"run_id":  report.RunID,
		"log":     logToPayload(report.Log),
		"deleted": report.Deleted,
		"habit":   report.Habit,
		"skipped": report.Skipped,
	}
}
