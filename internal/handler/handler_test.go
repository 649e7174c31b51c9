package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var handlerToday = time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

func setupHandlerTest(t *testing.T) (*API, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(gdb)
	eng := engine.New(st, st, st, store.NewGormInvalidator(gdb)).
		WithClock(func() time.Time { return handlerToday }).
		WithLogger(quiet)
	api := NewAPI(gdb, eng, quiet).WithClock(func() time.Time { return handlerToday })

	r := gin.New()
	r.POST("/users", api.CreateUser)
	r.GET("/users/:id", api.GetUser)
	r.DELETE("/users/:id", api.DeleteUser)
	r.GET("/users/:id/stats", api.GetUserStats)
	r.POST("/users/:id/stats", api.RecomputeUserStats)
	r.GET("/users/:id/analytics/:kind", api.QueryUserAnalytics)
	r.POST("/categories", api.CreateCategory)
	r.GET("/categories", api.ListCategories)
	r.GET("/categories/:id/stats", api.GetCategoryStats)
	r.DELETE("/categories/:id", api.DeleteCategory)
	r.POST("/habits", api.CreateHabit)
	r.GET("/habits", api.ListHabits)
	r.GET("/habits/:id", api.GetHabit)
	r.PUT("/habits/:id", api.UpdateHabit)
	r.GET("/habits/:id/stats", api.GetHabitStats)
	r.POST("/habits/:id/stats", api.RecomputeHabitStats)
	r.GET("/habits/:id/logs", api.ListHabitLogs)
	r.PUT("/habits/:id/logs", api.UpsertHabitLog)
	r.DELETE("/habits/:id/logs/:logId", api.DeleteHabitLog)

	return api, r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, payload
}

func seedHabitViaAPI(t *testing.T, r http.Handler) (userID, categoryID, habitID uint) {
	t.Helper()

	rr, body := doJSON(t, r, http.MethodPost, "/users", gin.H{"username": "alice"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rr.Code, rr.Body.String())
	}
	userID = uint(body["user"].(map[string]any)["id"].(float64))

	rr, body = doJSON(t, r, http.MethodPost, "/categories", gin.H{"user_id": userID, "name": "健康"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create category: %d %s", rr.Code, rr.Body.String())
	}
	categoryID = uint(body["category"].(map[string]any)["id"].(float64))

	rr, body = doJSON(t, r, http.MethodPost, "/habits", gin.H{
		"user_id":         userID,
		"category_id":     categoryID,
		"name":            "晨跑",
		"description":     "**5** 公里",
		"target_type":     "number",
		"target_value":    5,
		"target_unit":     "km",
		"frequency_unit":  "daily",
		"frequency_count": 1,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create habit: %d %s", rr.Code, rr.Body.String())
	}
	habitID = uint(body["habit"].(map[string]any)["id"].(float64))
	return userID, categoryID, habitID
}

func TestHabitLogLifecycle(t *testing.T) {
	_, r := setupHandlerTest(t)
	userID, categoryID, habitID := seedHabitViaAPI(t, r)

	var lastLogID float64
	for _, date := range []string{"2024-05-28", "2024-05-29", "2024-05-30"} {
		rr, body := doJSON(t, r, http.MethodPut, fmt.Sprintf("/habits/%d/logs", habitID), gin.H{
			"log_date":  date,
			"completed": true,
			"value":     4.5,
			"mood":      "good",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("upsert log %s: %d %s", date, rr.Code, rr.Body.String())
		}
		if skipped := body["skipped"].([]any); len(skipped) != 2 {
			t.Fatalf("expected deferred rollups, got %v", skipped)
		}
		lastLogID = body["log"].(map[string]any)["id"].(float64)
	}

	rr, body := doJSON(t, r, http.MethodGet, fmt.Sprintf("/habits/%d/stats", habitID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get habit stats: %d", rr.Code)
	}
	streak := body["streak"].(map[string]any)
	if streak["current"].(float64) != 3 || streak["last_completed_date"] != "2024-05-30" {
		t.Fatalf("unexpected streak: %v", streak)
	}

	rr, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/categories/%d/stats", categoryID), nil)
	if rr.Code != http.StatusOK || body["recomputed"] != true {
		t.Fatalf("expected pull-based recompute, got %d %v", rr.Code, body)
	}

	rr, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/stats", userID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get user stats: %d", rr.Code)
	}
	if stats := body["stats"].(map[string]any); stats["current_streak"].(float64) != 3 {
		t.Fatalf("unexpected user stats: %v", stats)
	}

	rr, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/habits/%d/logs?start=2024-05-01&end=2024-05-30", habitID), nil)
	if rr.Code != http.StatusOK || len(body["logs"].([]any)) != 3 {
		t.Fatalf("list logs: %d %v", rr.Code, body)
	}

	rr, body = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/habits/%d/logs/%d", habitID, int(lastLogID)), nil)
	if rr.Code != http.StatusOK || body["deleted"] != true {
		t.Fatalf("delete log: %d %v", rr.Code, body)
	}
	if current := body["habit"].(map[string]any)["streak"].(map[string]any)["current"].(float64); current != 0 {
		t.Fatalf("expected streak to break after deleting today's log, got %v", current)
	}

	rr, _ = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/habits/%d/logs/%d", habitID, int(lastLogID)), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing log, got %d", rr.Code)
	}
}

func TestUpsertHabitLogValidation(t *testing.T) {
	_, r := setupHandlerTest(t)
	_, _, habitID := seedHabitViaAPI(t, r)

	cases := []struct {
		name   string
		path   string
		body   gin.H
		status int
	}{
		{"missing date", fmt.Sprintf("/habits/%d/logs", habitID), gin.H{"completed": true}, http.StatusBadRequest},
		{"bad date", fmt.Sprintf("/habits/%d/logs", habitID), gin.H{"log_date": "30/05/2024"}, http.StatusBadRequest},
		{"bad mood", fmt.Sprintf("/habits/%d/logs", habitID), gin.H{"log_date": "2024-05-30", "mood": "ecstatic"}, http.StatusBadRequest},
		{"bad completed_at", fmt.Sprintf("/habits/%d/logs", habitID), gin.H{"log_date": "2024-05-30", "completed_at": "noon"}, http.StatusBadRequest},
		{"future date", fmt.Sprintf("/habits/%d/logs", habitID), gin.H{"log_date": "2024-05-31", "completed": true}, http.StatusBadRequest},
		{"unknown habit", "/habits/999/logs", gin.H{"log_date": "2024-05-30"}, http.StatusNotFound},
		{"bad id", "/habits/abc/logs", gin.H{"log_date": "2024-05-30"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, _ := doJSON(t, r, http.MethodPut, tc.path, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestGetHabitRendersDescription(t *testing.T) {
	_, r := setupHandlerTest(t)
	_, _, habitID := seedHabitViaAPI(t, r)

	rr, body := doJSON(t, r, http.MethodGet, fmt.Sprintf("/habits/%d", habitID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get habit: %d", rr.Code)
	}
	habit := body["habit"].(map[string]any)
	if html, _ := habit["description_html"].(string); html != "<p><strong>5</strong> 公里</p>\n" {
		t.Fatalf("unexpected description html: %q", html)
	}

	rr, _ = doJSON(t, r, http.MethodGet, "/habits/999", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCreateHabitValidation(t *testing.T) {
	_, r := setupHandlerTest(t)
	userID, categoryID, _ := seedHabitViaAPI(t, r)

	rr, _ := doJSON(t, r, http.MethodPost, "/habits", gin.H{"user_id": userID, "category_id": categoryID, "name": "阅读", "frequency_unit": "daily"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing frequency count should be rejected, got %d", rr.Code)
	}

	rr, _ = doJSON(t, r, http.MethodPost, "/habits", gin.H{"user_id": userID, "category_id": categoryID, "name": "阅读", "frequency_unit": "yearly", "frequency_count": 1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid frequency should be rejected, got %d", rr.Code)
	}

	rr, _ = doJSON(t, r, http.MethodPost, "/habits", gin.H{"user_id": 999, "category_id": categoryID, "name": "阅读", "frequency_unit": "daily", "frequency_count": 1})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user should be 404, got %d", rr.Code)
	}

	rr, body := doJSON(t, r, http.MethodGet, fmt.Sprintf("/habits?user_id=%d&status=active", userID), nil)
	if rr.Code != http.StatusOK || len(body["habits"].([]any)) != 1 {
		t.Fatalf("list habits: %d %v", rr.Code, body)
	}
}

func TestQueryUserAnalytics(t *testing.T) {
	_, r := setupHandlerTest(t)
	userID, _, habitID := seedHabitViaAPI(t, r)

	for i, completed := range []bool{true, true, false, true} {
		date := handlerToday.AddDate(0, 0, -i).Format(dateFormat)
		rr, _ := doJSON(t, r, http.MethodPut, fmt.Sprintf("/habits/%d/logs", habitID), gin.H{"log_date": date, "completed": completed})
		if rr.Code != http.StatusOK {
			t.Fatalf("upsert log: %d", rr.Code)
		}
	}

	rr, body := doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/analytics/consistency?start=2024-05-27&end=2024-05-30", userID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("consistency: %d %s", rr.Code, rr.Body.String())
	}
	if score := body["data"].(map[string]any)["score"].(float64); score != 75 {
		t.Fatalf("expected consistency 75, got %v", score)
	}

	rr, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/analytics/trend?start=2024-05-29&end=2024-05-30&habit_id=%d", userID, habitID), nil)
	if rr.Code != http.StatusOK || len(body["data"].([]any)) != 2 {
		t.Fatalf("trend: %d %v", rr.Code, body)
	}

	for _, path := range []string{
		fmt.Sprintf("/users/%d/analytics/nope", userID),
		fmt.Sprintf("/users/%d/analytics/trend?start=2024-05-30&end=2024-05-01", userID),
		fmt.Sprintf("/users/%d/analytics/trend?start=yesterday", userID),
		fmt.Sprintf("/users/%d/analytics/top_habits?limit=0", userID),
	} {
		rr, _ := doJSON(t, r, http.MethodGet, path, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rr.Code)
		}
	}

	rr, _ = doJSON(t, r, http.MethodGet, "/users/999/analytics/summary", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", rr.Code)
	}
}

func TestDeleteCategoryCascades(t *testing.T) {
	_, r := setupHandlerTest(t)
	userID, categoryID, habitID := seedHabitViaAPI(t, r)

	rr, body := doJSON(t, r, http.MethodDelete, fmt.Sprintf("/categories/%d", categoryID), nil)
	if rr.Code != http.StatusOK || body["deleted"] != true {
		t.Fatalf("delete category: %d %v", rr.Code, body)
	}

	rr, _ = doJSON(t, r, http.MethodGet, fmt.Sprintf("/habits/%d", habitID), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("habit should be gone, got %d", rr.Code)
	}

	rr, body = doJSON(t, r, http.MethodPost, fmt.Sprintf("/users/%d/stats", userID), nil)
	if rr.Code != http.StatusOK || body["stats"].(map[string]any)["total_habits"].(float64) != 0 {
		t.Fatalf("recompute user: %d %v", rr.Code, body)
	}
}

type failingStats struct {
	statsProvider
	retried int
	retry   error
}

func (f *failingStats) RecomputeHabitStats(_ context.Context, habitID uint) (*engine.HabitResult, error) {
	result := &engine.HabitResult{HabitID: habitID}
	return nil, &engine.SaveError{Level: engine.LevelHabit, ID: habitID, Result: result, Err: errors.New("disk full")}
}

func (f *failingStats) RecomputeUserStats(_ context.Context, _ uint) (*engine.UserResult, error) {
	return nil, engine.ErrConcurrentModification
}

func (f *failingStats) RetrySave(_ context.Context, _ *engine.SaveError) error {
	f.retried++
	return f.retry
}

func TestRecomputeRetriesFailedSave(t *testing.T) {
	api, r := setupHandlerTest(t)
	fake := &failingStats{statsProvider: api.stats}
	api.stats = fake

	rr, body := doJSON(t, r, http.MethodPost, "/habits/7/stats", nil)
	if rr.Code != http.StatusOK || body["habit_id"].(float64) != 7 {
		t.Fatalf("expected recovered result, got %d %v", rr.Code, body)
	}
	if fake.retried != 1 {
		t.Fatalf("expected one save retry, got %d", fake.retried)
	}

	fake.retry = errors.New("still full")
	rr, body = doJSON(t, r, http.MethodPost, "/habits/7/stats", nil)
	if rr.Code != http.StatusInternalServerError || body["result"] == nil {
		t.Fatalf("expected computed result to be surfaced, got %d %v", rr.Code, body)
	}

	rr, _ = doJSON(t, r, http.MethodPost, "/users/1/stats", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}
