package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/streaklog/internal/db"
)

func TestCategoryServiceCreateAndUpdate(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	if _, err := env.categories.Create(ctx, CategoryInput{UserID: 42, Name: "健康"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	user, err := env.users.Create(ctx, UserInput{Username: "alice"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := env.categories.Create(ctx, CategoryInput{UserID: user.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected name validation error, got %v", err)
	}

	category, err := env.categories.Create(ctx, CategoryInput{UserID: user.ID, Name: "健康", Color: "#22c55e"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	updated, err := env.categories.Update(ctx, category.ID, CategoryInput{Name: "运动", Icon: "run"})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Name != "运动" || updated.UserID != user.ID || updated.Icon != "run" {
		t.Fatalf("unexpected category: %+v", updated)
	}

	list, err := env.categories.List(ctx, user.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %d, %v", len(list), err)
	}
}

func TestCategoryServiceDeleteCascades(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	user, category, habit := env.seedHabit(t)

	if _, err := env.logs.Upsert(ctx, HabitLogInput{HabitID: habit.ID, LogDate: day(0), Completed: true}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if _, err := env.engine.RecomputeUserStats(ctx, user.ID); err != nil {
		t.Fatalf("RecomputeUserStats returned error: %v", err)
	}

	skipped, err := env.categories.Delete(ctx, category.ID)
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(skipped) != 1 || !strings.Contains(skipped[0].Error(), "user") {
		t.Fatalf("expected the user rollup to be deferred, got %+v", skipped)
	}

	var habits, logs int64
	env.db.Unscoped().Model(&db.Habit{}).Count(&habits)
	env.db.Model(&db.HabitLog{}).Count(&logs)
	if habits != 0 || logs != 0 {
		t.Fatalf("expected cascade delete, got %d habits and %d logs", habits, logs)
	}

	stats, err := env.engine.UserStats(ctx, user.ID)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if !stats.Recomputed || stats.Stats.TotalHabits != 0 {
		t.Fatalf("expected user stats to be refreshed, got %+v", stats)
	}

	if _, err := env.categories.Delete(ctx, category.ID); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestRenderDescription(t *testing.T) {
	html, err := RenderDescription("**每天** 跑步 <script>alert(1)</script>")
	if err != nil {
		t.Fatalf("RenderDescription returned error: %v", err)
	}
	if !strings.Contains(html, "<strong>每天</strong>") {
		t.Fatalf("expected markdown to render, got %s", html)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected script to be stripped, got %s", html)
	}

	if empty, _ := RenderDescription("   "); empty != "" {
		t.Fatalf("expected empty output, got %q", empty)
	}
}
