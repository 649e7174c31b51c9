package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/engine"
	"github.com/streaklog/internal/handler"
	"github.com/streaklog/internal/router"
	"github.com/streaklog/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var e2eToday = time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC)

type e2eSuite struct {
	handler    http.Handler
	baseURL    string
	userID     uint
	categoryID uint
	habitID    uint
	logIDs     map[string]uint
}

func TestE2E_HabitLifecycle(t *testing.T) {
	suite := newE2ESuite(t)

	t.Run("catalog", suite.testCatalog)
	t.Run("logging cascade", suite.testLoggingCascade)
	t.Run("aggregates", suite.testAggregates)
	t.Run("analytics", suite.testAnalytics)
	t.Run("log deletion", suite.testLogDeletion)
	t.Run("error mapping", suite.testErrorMapping)
	t.Run("user deletion", suite.testUserDeletion)
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file:e2e?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return e2eToday }

	st := store.New(gdb)
	eng := engine.New(st, st, st, store.NewGormInvalidator(gdb)).
		WithClock(clock).
		WithLogger(quiet)
	api := handler.NewAPI(gdb, eng, quiet).WithClock(clock)

	return &e2eSuite{
		handler: router.SetupRouter(api, quiet),
		baseURL: "http://example.test",
		logIDs:  map[string]uint{},
	}
}

func (s *e2eSuite) testCatalog(t *testing.T) {
	var created struct {
		User struct {
			ID       uint   `json:"id"`
			Timezone string `json:"timezone"`
		} `json:"user"`
	}
	resp := s.mustRequestJSON(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "e2e",
		"email":    "e2e@example.com",
	})
	expectStatus(t, resp, http.StatusCreated)
	decodeJSON(t, resp, &created)
	if created.User.Timezone != "UTC" {
		t.Fatalf("expected default timezone UTC, got %q", created.User.Timezone)
	}
	s.userID = created.User.ID

	resp = s.mustRequestJSON(t, http.MethodPost, "/api/users", map[string]interface{}{"username": "e2e"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	var category struct {
		Category struct {
			ID uint `json:"id"`
		} `json:"category"`
	}
	resp = s.mustRequestJSON(t, http.MethodPost, "/api/categories", map[string]interface{}{
		"user_id": s.userID,
		"name":    "运动",
		"color":   "#ff0000",
	})
	expectStatus(t, resp, http.StatusCreated)
	decodeJSON(t, resp, &category)
	s.categoryID = category.Category.ID

	var habit struct {
		Habit struct {
			ID     uint `json:"id"`
			Streak struct {
				Current int `json:"current"`
			} `json:"streak"`
		} `json:"habit"`
	}
	resp = s.mustRequestJSON(t, http.MethodPost, "/api/habits", map[string]interface{}{
		"user_id":         s.userID,
		"category_id":     s.categoryID,
		"name":            "拉伸",
		"description":     "**睡前** 十分钟",
		"target_type":     "boolean",
		"frequency_unit":  "daily",
		"frequency_count": 1,
		"status":          "active",
	})
	expectStatus(t, resp, http.StatusCreated)
	decodeJSON(t, resp, &habit)
	s.habitID = habit.Habit.ID
	if habit.Habit.Streak.Current != 0 {
		t.Fatalf("expected new habit to have no streak, got %d", habit.Habit.Streak.Current)
	}

	var detail struct {
		Habit map[string]interface{} `json:"habit"`
	}
	resp = s.mustRequest(t, http.MethodGet, "/api/habits/"+idStr(s.habitID), nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &detail)
	if html, _ := detail.Habit["description_html"].(string); !bytes.Contains([]byte(html), []byte("<strong>睡前</strong>")) {
		t.Fatalf("expected rendered description, got %q", html)
	}

	var list struct {
		Habits []map[string]interface{} `json:"habits"`
	}
	resp = s.mustRequest(t, http.MethodGet, fmt.Sprintf("/api/habits?user_id=%d&status=active", s.userID), nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &list)
	if len(list.Habits) != 1 {
		t.Fatalf("expected one habit listed, got %d", len(list.Habits))
	}
}

func (s *e2eSuite) testLoggingCascade(t *testing.T) {
	var report struct {
		Log struct {
			ID uint `json:"id"`
		} `json:"log"`
		Habit struct {
			Streak struct {
				Current int `json:"current"`
				Longest int `json:"longest"`
			} `json:"streak"`
		} `json:"habit"`
		Skipped []struct {
			Level string `json:"level"`
			ID    uint   `json:"id"`
		} `json:"skipped"`
	}

	// 26 号完成，27 号断开，28-30 连续
	for _, date := range []string{"2024-05-26", "2024-05-28", "2024-05-29", "2024-05-30"} {
		resp := s.mustRequestJSON(t, http.MethodPut, "/api/habits/"+idStr(s.habitID)+"/logs", map[string]interface{}{
			"log_date":  date,
			"completed": true,
			"mood":      "good",
		})
		expectStatus(t, resp, http.StatusOK)
		decodeJSON(t, resp, &report)
		s.logIDs[date] = report.Log.ID
	}

	if report.Habit.Streak.Current != 3 || report.Habit.Streak.Longest != 3 {
		t.Fatalf("expected streak 3/3, got %d/%d", report.Habit.Streak.Current, report.Habit.Streak.Longest)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("expected category and user recompute to be deferred, got %+v", report.Skipped)
	}

	resp := s.mustRequestJSON(t, http.MethodPut, "/api/habits/"+idStr(s.habitID)+"/logs", map[string]interface{}{
		"log_date":  "2024-05-27",
		"completed": false,
		"mood":      "terrible",
	})
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &report)
	s.logIDs["2024-05-27"] = report.Log.ID

	resp = s.mustRequestJSON(t, http.MethodPut, "/api/habits/"+idStr(s.habitID)+"/logs", map[string]interface{}{
		"log_date":  "2024-05-27",
		"completed": false,
		"mood":      "ecstatic",
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	var logs struct {
		Logs []map[string]interface{} `json:"logs"`
	}
	resp = s.mustRequest(t, http.MethodGet, "/api/habits/"+idStr(s.habitID)+"/logs?start=2024-05-01&end=2024-05-31", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &logs)
	if len(logs.Logs) != 5 {
		t.Fatalf("expected 5 logs, got %d", len(logs.Logs))
	}
}

func (s *e2eSuite) testAggregates(t *testing.T) {
	var categoryStats struct {
		Stats struct {
			TotalHabits  int `json:"total_habits"`
			ActiveHabits int `json:"active_habits"`
		} `json:"stats"`
		Recomputed bool `json:"recomputed"`
	}
	resp := s.mustRequest(t, http.MethodGet, "/api/categories/"+idStr(s.categoryID)+"/stats", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &categoryStats)
	if !categoryStats.Recomputed {
		t.Fatalf("expected stale category stats to be recomputed on read")
	}
	if categoryStats.Stats.TotalHabits != 1 || categoryStats.Stats.ActiveHabits != 1 {
		t.Fatalf("unexpected category stats: %+v", categoryStats.Stats)
	}

	resp = s.mustRequest(t, http.MethodGet, "/api/categories/"+idStr(s.categoryID)+"/stats", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &categoryStats)
	if categoryStats.Recomputed {
		t.Fatalf("expected clean category stats to be served from cache")
	}

	var userStats struct {
		Stats struct {
			TotalHabits      int `json:"total_habits"`
			TotalCompletions int `json:"total_completions"`
			CurrentStreak    int `json:"current_streak"`
			LongestStreak    int `json:"longest_streak"`
		} `json:"stats"`
	}
	resp = s.mustRequest(t, http.MethodGet, "/api/users/"+idStr(s.userID)+"/stats", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &userStats)
	if userStats.Stats.TotalCompletions != 4 || userStats.Stats.CurrentStreak != 3 || userStats.Stats.LongestStreak != 3 {
		t.Fatalf("unexpected user stats: %+v", userStats.Stats)
	}

	resp = s.mustRequest(t, http.MethodPost, "/api/habits/"+idStr(s.habitID)+"/stats", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func (s *e2eSuite) testAnalytics(t *testing.T) {
	var consistency struct {
		Kind string `json:"kind"`
		Data struct {
			TotalDays  int `json:"total_days"`
			ActiveDays int `json:"active_days"`
		} `json:"data"`
	}
	resp := s.mustRequest(t, http.MethodGet, "/api/users/"+idStr(s.userID)+"/analytics/consistency?start=2024-05-24&end=2024-05-30", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &consistency)
	if consistency.Data.TotalDays != 7 || consistency.Data.ActiveDays != 4 {
		t.Fatalf("unexpected consistency: %+v", consistency.Data)
	}

	var trend struct {
		Data []struct {
			Date string `json:"date"`
		} `json:"data"`
	}
	resp = s.mustRequest(t, http.MethodGet, "/api/users/"+idStr(s.userID)+"/analytics/trend?start=2024-05-24&end=2024-05-30", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &trend)
	if len(trend.Data) != 7 {
		t.Fatalf("expected a dense 7 day trend, got %d points", len(trend.Data))
	}

	resp = s.mustRequest(t, http.MethodGet, "/api/users/"+idStr(s.userID)+"/analytics/top_habits?limit=5", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func (s *e2eSuite) testLogDeletion(t *testing.T) {
	var report struct {
		Deleted bool `json:"deleted"`
		Habit   struct {
			Streak struct {
				Current int `json:"current"`
				Longest int `json:"longest"`
			} `json:"streak"`
		} `json:"habit"`
	}
	resp := s.mustRequest(t, http.MethodDelete, fmt.Sprintf("/api/habits/%d/logs/%d", s.habitID, s.logIDs["2024-05-29"]), nil)
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &report)
	if !report.Deleted {
		t.Fatalf("expected deleted flag")
	}
	if report.Habit.Streak.Current != 1 || report.Habit.Streak.Longest != 1 {
		t.Fatalf("expected streak 1/1 after removing the middle day, got %d/%d", report.Habit.Streak.Current, report.Habit.Streak.Longest)
	}

	resp = s.mustRequest(t, http.MethodDelete, fmt.Sprintf("/api/habits/%d/logs/%d", s.habitID, s.logIDs["2024-05-29"]), nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func (s *e2eSuite) testErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"missing habit", http.MethodGet, "/api/habits/999", http.StatusNotFound},
		{"missing habit stats", http.MethodPost, "/api/habits/999/stats", http.StatusNotFound},
		{"missing category stats", http.MethodGet, "/api/categories/999/stats", http.StatusNotFound},
		{"missing user stats", http.MethodGet, "/api/users/999/stats", http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/habits/abc", http.StatusBadRequest},
		{"unknown analytics", http.MethodGet, "/api/users/" + idStr(s.userID) + "/analytics/forecast", http.StatusBadRequest},
		{"inverted range", http.MethodGet, "/api/users/" + idStr(s.userID) + "/analytics/trend?start=2024-05-30&end=2024-05-01", http.StatusBadRequest},
		{"inverted log range", http.MethodGet, "/api/habits/" + idStr(s.habitID) + "/logs?start=2024-05-30&end=2024-05-01", http.StatusBadRequest},
	}

	for _, tc := range cases {
		resp := s.mustRequest(t, tc.method, tc.path, nil)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func (s *e2eSuite) testUserDeletion(t *testing.T) {
	resp := s.mustRequest(t, http.MethodDelete, "/api/users/"+idStr(s.userID), nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	for _, path := range []string{
		"/api/users/" + idStr(s.userID),
		"/api/categories/" + idStr(s.categoryID),
		"/api/habits/" + idStr(s.habitID),
	} {
		resp := s.mustRequest(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404 after user deletion, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func (s *e2eSuite) mustRequest(t *testing.T, method, path string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to create request %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w.Result()
}

func (s *e2eSuite) mustRequestJSON(t *testing.T, method, path string, payload map[string]interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return s.mustRequest(t, method, path, bytes.NewReader(data))
}

func expectStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	if resp.StatusCode != status {
		body := readBody(t, resp)
		t.Fatalf("expected status %d, got %d: %s", status, resp.StatusCode, body)
	}
}

func decodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(data)
}

func idStr(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
