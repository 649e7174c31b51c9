package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/streaklog/internal/streak"
)

// AnalyticsKind 分析查询类型
type AnalyticsKind string

const (
	KindTrend               AnalyticsKind = "trend"
	KindWeeklyPattern       AnalyticsKind = "weekly"
	KindTopHabits           AnalyticsKind = "top_habits"
	KindCategoryPerformance AnalyticsKind = "category_performance"
	KindMood                AnalyticsKind = "mood"
	KindConsistency         AnalyticsKind = "consistency"
	KindHeatmap             AnalyticsKind = "heatmap"
	KindSummary             AnalyticsKind = "summary"
)

const (
	dateFormat       = "2006-01-02"
	defaultTopLimit  = 5
	heatmapDays      = 365
	maxAnalyticsDays = 731
)

// AnalyticsKinds 列出全部支持的分析类型
func AnalyticsKinds() []AnalyticsKind {
	return []AnalyticsKind{
		KindTrend, KindWeeklyPattern, KindTopHabits, KindCategoryPerformance,
		KindMood, KindConsistency, KindHeatmap, KindSummary,
	}
}

// moodOrder 为已知心情标签的展示顺序，未知标签按字母序排在后面
var moodOrder = map[string]int{"great": 0, "good": 1, "okay": 2, "bad": 3, "terrible": 4}

var weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// AnalyticsParams 查询参数，Start/End 为零值时使用默认窗口
type AnalyticsParams struct {
	Start    time.Time
	End      time.Time
	Limit    int
	HabitIDs []uint
}

// AnalyticsResult 为所有分析查询的统一外壳
type AnalyticsResult struct {
	Kind  AnalyticsKind `json:"kind" yaml:"kind"`
	Start string        `json:"start" yaml:"start"`
	End   string        `json:"end" yaml:"end"`
	Data  any           `json:"data" yaml:"data"`
}

// TrendPoint 单日完成情况
type TrendPoint struct {
	Date       string  `json:"date" yaml:"date"`
	Total      int     `json:"total" yaml:"total"`
	Completed  int     `json:"completed" yaml:"completed"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// WeekdayPoint 按星期聚合的完成情况，DayOfWeek 0 为周日
type WeekdayPoint struct {
	DayOfWeek  int     `json:"day_of_week" yaml:"day_of_week"`
	Name       string  `json:"name" yaml:"name"`
	Total      int     `json:"total" yaml:"total"`
	Completed  int     `json:"completed" yaml:"completed"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// TopHabit 区间内完成次数排行
type TopHabit struct {
	HabitID     uint    `json:"habit_id" yaml:"habit_id"`
	Name        string  `json:"name" yaml:"name"`
	Completions int     `json:"completions" yaml:"completions"`
	Total       int     `json:"total" yaml:"total"`
	Percentage  float64 `json:"percentage" yaml:"percentage"`
}

// CategoryPoint 分类在区间内的完成率
type CategoryPoint struct {
	CategoryID uint    `json:"category_id" yaml:"category_id"`
	Name       string  `json:"name" yaml:"name"`
	Total      int     `json:"total" yaml:"total"`
	Completed  int     `json:"completed" yaml:"completed"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// CategoryDistribution 当前时刻各分类下的习惯数量
type CategoryDistribution struct {
	CategoryID   uint   `json:"category_id" yaml:"category_id"`
	Name         string `json:"name" yaml:"name"`
	HabitCount   int    `json:"habit_count" yaml:"habit_count"`
	ActiveHabits int    `json:"active_habits" yaml:"active_habits"`
}

// CategoryPerformance 分类表现与分布
type CategoryPerformance struct {
	Categories   []CategoryPoint        `json:"categories" yaml:"categories"`
	Distribution []CategoryDistribution `json:"distribution" yaml:"distribution"`
}

// MoodCount 心情标签计数
type MoodCount struct {
	Mood  string `json:"mood" yaml:"mood"`
	Count int    `json:"count" yaml:"count"`
}

// MoodDay 单日心情计数
type MoodDay struct {
	Date   string         `json:"date" yaml:"date"`
	Counts map[string]int `json:"counts" yaml:"counts"`
}

// MoodCorrelation 以心情为条件的完成率
type MoodCorrelation struct {
	Mood           string  `json:"mood" yaml:"mood"`
	Total          int     `json:"total" yaml:"total"`
	Completed      int     `json:"completed" yaml:"completed"`
	CompletionRate float64 `json:"completion_rate" yaml:"completion_rate"`
}

// MoodReport 心情分布、趋势与相关性
type MoodReport struct {
	Distribution []MoodCount       `json:"distribution" yaml:"distribution"`
	Trend        []MoodDay         `json:"trend" yaml:"trend"`
	Correlation  []MoodCorrelation `json:"correlation" yaml:"correlation"`
}

// Consistency 区间内有完成记录的天数占比
type Consistency struct {
	TotalDays  int `json:"total_days" yaml:"total_days"`
	ActiveDays int `json:"active_days" yaml:"active_days"`
	Score      int `json:"score" yaml:"score"`
}

// HeatmapDay 热力图中的单日数据
type HeatmapDay struct {
	Date      string `json:"date" yaml:"date"`
	Completed int    `json:"completed" yaml:"completed"`
	HabitIDs  []uint `json:"habit_ids" yaml:"habit_ids"`
}

// Summary 概览
type Summary struct {
	TotalLogs      int     `json:"total_logs" yaml:"total_logs"`
	Completed      int     `json:"completed" yaml:"completed"`
	CompletionRate float64 `json:"completion_rate" yaml:"completion_rate"`
	Consistency    int     `json:"consistency" yaml:"consistency"`
	ActiveHabits   int     `json:"active_habits" yaml:"active_habits"`
	BestWeekday    string  `json:"best_weekday,omitempty" yaml:"best_weekday,omitempty"`
}

// QueryAnalytics 只读分析入口：每次都直接从日志计算，不读取也不修改统计缓存
func (e *Engine) QueryAnalytics(ctx context.Context, userID uint, kind AnalyticsKind, params AnalyticsParams) (*AnalyticsResult, error) {
	if !slices.Contains(AnalyticsKinds(), kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalytics, kind)
	}

	defaultDays := e.windowDays
	if kind == KindHeatmap {
		defaultDays = heatmapDays
	}
	start, end, err := e.resolveRange(params.Start, params.End, defaultDays)
	if err != nil {
		return nil, err
	}

	if _, err := e.catalog.User(ctx, userID); err != nil {
		return nil, err
	}

	logs, err := e.logs.FindLogsInRange(ctx, userID, start, end, params.HabitIDs...)
	if err != nil {
		return nil, fmt.Errorf("load analytics logs: %w", err)
	}

	result := &AnalyticsResult{Kind: kind, Start: start.Format(dateFormat), End: end.Format(dateFormat)}

	switch kind {
	case KindTrend:
		result.Data = completionTrend(logs, start, end)
	case KindWeeklyPattern:
		result.Data = weeklyPattern(logs)
	case KindConsistency:
		result.Data = consistency(logs, start, end)
	case KindHeatmap:
		result.Data = heatmap(logs)
	case KindMood:
		result.Data = moodReport(logs)
	case KindTopHabits, KindCategoryPerformance, KindSummary:
		habits, err := e.catalog.HabitsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load user habits: %w", err)
		}
		switch kind {
		case KindTopHabits:
			result.Data = topHabits(logs, habits, params.Limit)
		case KindSummary:
			result.Data = summarize(logs, habits, start, end)
		default:
			categories, err := e.catalog.CategoriesByUser(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("load user categories: %w", err)
			}
			result.Data = categoryPerformance(logs, habits, categories)
		}
	}

	return result, nil
}

func (e *Engine) resolveRange(start, end time.Time, defaultDays int) (time.Time, time.Time, error) {
	if end.IsZero() {
		end = e.today()
	}
	end = streak.Normalize(end)

	if start.IsZero() {
		start = end.AddDate(0, 0, -(defaultDays - 1))
	}
	start = streak.Normalize(start)

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end.Format(dateFormat), start.Format(dateFormat))
	}
	if streak.DaysBetween(start, end)+1 > maxAnalyticsDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range exceeds %d days", ErrInvalidRange, maxAnalyticsDays)
	}

	return start, end, nil
}

func completionTrend(logs []LogEntry, start, end time.Time) []TrendPoint {
	days := streak.DaysBetween(start, end) + 1
	points := make([]TrendPoint, days)
	for i := range points {
		points[i].Date = start.AddDate(0, 0, i).Format(dateFormat)
	}

	for _, entry := range logs {
		idx := streak.DaysBetween(start, entry.Date)
		if idx < 0 || idx >= days {
			continue
		}
		points[idx].Total++
		if entry.Completed {
			points[idx].Completed++
		}
	}

	for i := range points {
		points[i].Percentage = percent(points[i].Completed, points[i].Total, 2)
	}
	return points
}

func weeklyPattern(logs []LogEntry) []WeekdayPoint {
	points := make([]WeekdayPoint, 7)
	for i := range points {
		points[i].DayOfWeek = i
		points[i].Name = weekdayNames[i]
	}

	for _, entry := range logs {
		wd := int(streak.Normalize(entry.Date).Weekday())
		points[wd].Total++
		if entry.Completed {
			points[wd].Completed++
		}
	}

	for i := range points {
		points[i].Percentage = percent(points[i].Completed, points[i].Total, 2)
	}
	return points
}

// topHabits 按完成次数倒序，次数相同按习惯创建顺序
func topHabits(logs []LogEntry, habits []Habit, limit int) []TopHabit {
	if limit <= 0 {
		limit = defaultTopLimit
	}

	byID := make(map[uint]Habit, len(habits))
	for _, habit := range habits {
		byID[habit.ID] = habit
	}

	tally := make(map[uint]*TopHabit)
	for _, entry := range logs {
		habit, ok := byID[entry.HabitID]
		if !ok {
			continue
		}
		item, ok := tally[habit.ID]
		if !ok {
			item = &TopHabit{HabitID: habit.ID, Name: habit.Name}
			tally[habit.ID] = item
		}
		item.Total++
		if entry.Completed {
			item.Completions++
		}
	}

	items := make([]TopHabit, 0, len(tally))
	for _, item := range tally {
		item.Percentage = percent(item.Completions, item.Total, 2)
		items = append(items, *item)
	}

	slices.SortFunc(items, func(a, b TopHabit) int {
		if diff := cmp.Compare(b.Completions, a.Completions); diff != 0 {
			return diff
		}
		ha, hb := byID[a.HabitID], byID[b.HabitID]
		if diff := ha.CreatedAt.Compare(hb.CreatedAt); diff != 0 {
			return diff
		}
		return cmp.Compare(a.HabitID, b.HabitID)
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func categoryPerformance(logs []LogEntry, habits []Habit, categories []Category) CategoryPerformance {
	habitCategory := make(map[uint]uint, len(habits))
	distribution := make(map[uint]*CategoryDistribution, len(categories))
	points := make(map[uint]*CategoryPoint, len(categories))

	for _, category := range categories {
		distribution[category.ID] = &CategoryDistribution{CategoryID: category.ID, Name: category.Name}
		points[category.ID] = &CategoryPoint{CategoryID: category.ID, Name: category.Name}
	}

	for _, habit := range habits {
		habitCategory[habit.ID] = habit.CategoryID
		item, ok := distribution[habit.CategoryID]
		if !ok {
			continue
		}
		item.HabitCount++
		if habit.Active {
			item.ActiveHabits++
		}
	}

	for _, entry := range logs {
		point, ok := points[habitCategory[entry.HabitID]]
		if !ok {
			continue
		}
		point.Total++
		if entry.Completed {
			point.Completed++
		}
	}

	report := CategoryPerformance{
		Categories:   make([]CategoryPoint, 0, len(categories)),
		Distribution: make([]CategoryDistribution, 0, len(categories)),
	}
	for _, category := range categories {
		point := points[category.ID]
		point.Percentage = percent(point.Completed, point.Total, 2)
		report.Categories = append(report.Categories, *point)
		report.Distribution = append(report.Distribution, *distribution[category.ID])
	}

	slices.SortStableFunc(report.Categories, func(a, b CategoryPoint) int {
		return cmp.Compare(b.Percentage, a.Percentage)
	})

	return report
}

func moodReport(logs []LogEntry) MoodReport {
	counts := make(map[string]*MoodCorrelation)
	perDay := make(map[string]map[string]int)

	for _, entry := range logs {
		if entry.Mood == "" {
			continue
		}
		item, ok := counts[entry.Mood]
		if !ok {
			item = &MoodCorrelation{Mood: entry.Mood}
			counts[entry.Mood] = item
		}
		item.Total++
		if entry.Completed {
			item.Completed++
		}

		key := streak.Normalize(entry.Date).Format(dateFormat)
		if perDay[key] == nil {
			perDay[key] = make(map[string]int)
		}
		perDay[key][entry.Mood]++
	}

	moods := make([]string, 0, len(counts))
	for mood := range counts {
		moods = append(moods, mood)
	}
	slices.SortFunc(moods, compareMood)

	report := MoodReport{
		Distribution: make([]MoodCount, 0, len(moods)),
		Correlation:  make([]MoodCorrelation, 0, len(moods)),
		Trend:        make([]MoodDay, 0, len(perDay)),
	}
	for _, mood := range moods {
		item := counts[mood]
		item.CompletionRate = percent(item.Completed, item.Total, 2)
		report.Distribution = append(report.Distribution, MoodCount{Mood: mood, Count: item.Total})
		report.Correlation = append(report.Correlation, *item)
	}

	for date, dayCounts := range perDay {
		report.Trend = append(report.Trend, MoodDay{Date: date, Counts: dayCounts})
	}
	slices.SortFunc(report.Trend, func(a, b MoodDay) int {
		return cmp.Compare(a.Date, b.Date)
	})

	return report
}

func compareMood(a, b string) int {
	ia, okA := moodOrder[a]
	ib, okB := moodOrder[b]
	switch {
	case okA && okB:
		return cmp.Compare(ia, ib)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

func consistency(logs []LogEntry, start, end time.Time) Consistency {
	active := make(map[time.Time]struct{})
	for _, entry := range logs {
		if entry.Completed {
			active[streak.Normalize(entry.Date)] = struct{}{}
		}
	}

	total := streak.DaysBetween(start, end) + 1
	return Consistency{
		TotalDays:  total,
		ActiveDays: len(active),
		Score:      wholePercent(len(active), total),
	}
}

func heatmap(logs []LogEntry) []HeatmapDay {
	byDate := make(map[string]*HeatmapDay)
	for _, entry := range logs {
		if !entry.Completed {
			continue
		}
		key := streak.Normalize(entry.Date).Format(dateFormat)
		item, ok := byDate[key]
		if !ok {
			item = &HeatmapDay{Date: key}
			byDate[key] = item
		}
		item.Completed++
		item.HabitIDs = append(item.HabitIDs, entry.HabitID)
	}

	days := make([]HeatmapDay, 0, len(byDate))
	for _, item := range byDate {
		slices.Sort(item.HabitIDs)
		days = append(days, *item)
	}
	slices.SortFunc(days, func(a, b HeatmapDay) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return days
}

func summarize(logs []LogEntry, habits []Habit, start, end time.Time) Summary {
	summary := Summary{TotalLogs: len(logs)}
	for _, entry := range logs {
		if entry.Completed {
			summary.Completed++
		}
	}
	for _, habit := range habits {
		if habit.Active {
			summary.ActiveHabits++
		}
	}

	summary.CompletionRate = percent(summary.Completed, summary.TotalLogs, 2)
	summary.Consistency = consistency(logs, start, end).Score

	best := -1.0
	for _, point := range weeklyPattern(logs) {
		if point.Total > 0 && point.Percentage > best {
			best = point.Percentage
			summary.BestWeekday = point.Name
		}
	}

	return summary
}
