package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"time"

	"github.com/streaklog/internal/app"
	"github.com/streaklog/internal/config"
	"github.com/streaklog/internal/db"
	"github.com/streaklog/internal/service"
)

// 测试数据生成器
func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	a, err := app.New(cfg, cfg.NewLogger())
	if err != nil {
		log.Fatal("数据库初始化失败:", err)
	}
	defer a.Close()

	fmt.Println("开始生成测试数据...")

	summary, err := seed(context.Background(), a, time.Now().UTC(), 1)
	if err != nil {
		log.Fatal("生成测试数据失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("用户: %d, 分类: %d, 习惯: %d, 打卡: %d\n",
		summary.Users, summary.Categories, summary.Habits, summary.Logs)
	if summary.Skipped > 0 {
		fmt.Printf("有 %d 次聚合重算被延后，读取时会自动补算\n", summary.Skipped)
	}
}

type seedSummary struct {
	Users      int
	Categories int
	Habits     int
	Logs       int
	Skipped    int
}

type seedHabit struct {
	name        string
	targetType  string
	targetValue float64
	targetUnit  string
	// 完成概率，0-100
	rate int
}

type seedCategory struct {
	name   string
	color  string
	habits []seedHabit
}

var seedUsers = []service.UserInput{
	{Username: "alice", Email: "alice@example.com", Timezone: "Asia/Shanghai"},
	{Username: "bob", Email: "bob@example.com", Timezone: "UTC"},
}

var seedCatalog = []seedCategory{
	{
		name:  "健康",
		color: "#22c55e",
		habits: []seedHabit{
			{name: "晨跑", targetType: "number", targetValue: 5, targetUnit: "km", rate: 70},
			{name: "喝水", targetType: "number", targetValue: 8, targetUnit: "杯", rate: 90},
		},
	},
	{
		name:  "学习",
		color: "#3b82f6",
		habits: []seedHabit{
			{name: "阅读", targetType: "duration", targetValue: 30, targetUnit: "min", rate: 60},
			{name: "背单词", targetType: "boolean", rate: 80},
		},
	},
	{
		name:  "生活",
		color: "#f59e0b",
		habits: []seedHabit{
			{name: "早睡", targetType: "boolean", rate: 45},
		},
	},
}

var seedMoods = []string{"great", "good", "okay", "bad", "terrible"}
var seedDifficulties = []string{"easy", "medium", "hard"}

// seed 通过服务层写入数据，打卡会触发正常的级联重算
func seed(ctx context.Context, a *app.App, now time.Time, randSeed int64) (seedSummary, error) {
	var summary seedSummary
	rng := rand.New(rand.NewSource(randSeed))
	days := a.Engine.WindowDays()

	users := service.NewUserService(a.DB)
	categories := service.NewCategoryService(a.DB, a.Engine)
	habits := service.NewHabitService(a.DB, a.Engine)
	logs := service.NewHabitLogService(a.DB, a.Engine).WithClock(func() time.Time { return now })

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, userInput := range seedUsers {
		user, err := users.Create(ctx, userInput)
		if errors.Is(err, service.ErrUsernameTaken) {
			fmt.Printf("用户 %s 已存在，跳过创建\n", userInput.Username)
			continue
		}
		if err != nil {
			return summary, err
		}
		summary.Users++

		for _, cat := range seedCatalog {
			category, err := categories.Create(ctx, service.CategoryInput{UserID: user.ID, Name: cat.name, Color: cat.color})
			if err != nil {
				return summary, err
			}
			summary.Categories++

			for _, h := range cat.habits {
				habit, _, err := habits.Create(ctx, service.HabitInput{
					UserID:         user.ID,
					CategoryID:     category.ID,
					Name:           h.name,
					TargetType:     h.targetType,
					TargetValue:    h.targetValue,
					TargetUnit:     h.targetUnit,
					FrequencyUnit:  "daily",
					FrequencyCount: 1,
					Status:         "active",
				})
				if err != nil {
					return summary, err
				}
				summary.Habits++

				n, skipped, err := seedLogs(ctx, logs, habit, h, today, days, rng)
				if err != nil {
					return summary, err
				}
				summary.Logs += n
				summary.Skipped += skipped
			}
		}

		fmt.Printf("✅ 用户 %s 数据创建完成\n", user.Username)
	}

	return summary, nil
}

func seedLogs(ctx context.Context, logs *service.HabitLogService, habit *db.Habit, h seedHabit, today time.Time, days int, rng *rand.Rand) (int, int, error) {
	count, skipped := 0, 0
	for offset := days - 1; offset >= 0; offset-- {
		// 约一成的日子没有任何记录
		if rng.Intn(10) == 0 {
			continue
		}
		input := service.HabitLogInput{
			HabitID:    habit.ID,
			LogDate:    today.AddDate(0, 0, -offset),
			Completed:  rng.Intn(100) < h.rate,
			Mood:       seedMoods[rng.Intn(len(seedMoods))],
			Difficulty: seedDifficulties[rng.Intn(len(seedDifficulties))],
			Source:     "seed",
		}
		if h.targetType != "boolean" && input.Completed {
			value := h.targetValue * (0.5 + rng.Float64())
			input.Value = &value
			input.Unit = h.targetUnit
		}

		report, err := logs.Upsert(ctx, input)
		if err != nil {
			return count, skipped, fmt.Errorf("seed log for habit %d: %w", habit.ID, err)
		}
		count++
		skipped += len(report.Skipped)
	}

	if skipped > 0 {
		slog.Warn("aggregate recompute deferred during seeding", "habit_id", habit.ID, "skipped", skipped)
	}
	return count, skipped, nil
}
