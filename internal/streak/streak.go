// Package streak 计算单个习惯的连续打卡。
//
// 所有聚合层（习惯、分类、用户）都通过 Compute 得到连胜数据，
// 不在各自的代码路径里重复推导。
package streak

import (
	"slices"
	"time"
)

// Day 表示某个自然日的打卡状态
type Day struct {
	Date      time.Time
	Completed bool
}

// Result 为连胜计算结果，LastCompleted 在没有任何完成记录时为 nil
type Result struct {
	Current       int        `json:"current"`
	Longest       int        `json:"longest"`
	LastCompleted *time.Time `json:"last_completed_date"`
}

// Normalize 将时间截断到 UTC 零点，日期是日志的自然键
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween 返回两个日期之间相差的自然日数（later - earlier）
func DaysBetween(earlier, later time.Time) int {
	return int(Normalize(later).Sub(Normalize(earlier)).Hours() / 24)
}

// Compute 从最近一天往前遍历，得出当前连胜、最长连胜与最近完成日期。
//
// asOf 为参照日：晚于 asOf 的记录不参与计算，当前连胜只有在 asOf
// 当天有完成记录且向前不间断时才大于 0。asOf 为零值时以最近一条记录的日期为参照。
// 缺失的日期与未完成的日期同样会打断连胜。
func Compute(days []Day, asOf time.Time) Result {
	walk := prepare(days, asOf)
	if len(walk) == 0 {
		return Result{}
	}

	anchor := walk[0].Date
	if !asOf.IsZero() {
		anchor = Normalize(asOf)
	}

	var (
		res      Result
		running  int
		touching bool
		prev     time.Time
	)

	for i, day := range walk {
		if !day.Completed {
			running = 0
			touching = false
			prev = day.Date
			continue
		}

		if res.LastCompleted == nil {
			last := day.Date
			res.LastCompleted = &last
		}

		switch {
		case i == 0:
			running = 1
			touching = day.Date.Equal(anchor)
		case running > 0 && DaysBetween(day.Date, prev) == 1:
			running++
		default:
			running = 1
			touching = false
		}
		prev = day.Date

		if touching {
			res.Current = running
		}
		if running > res.Longest {
			res.Longest = running
		}
	}

	return res
}

// prepare 归一化日期、剔除参照日之后的记录、合并同日记录并按日期倒序排列
func prepare(days []Day, asOf time.Time) []Day {
	if len(days) == 0 {
		return nil
	}

	var limit time.Time
	if !asOf.IsZero() {
		limit = Normalize(asOf)
	}

	byDate := make(map[time.Time]int, len(days))
	walk := make([]Day, 0, len(days))
	for _, day := range days {
		date := Normalize(day.Date)
		if !limit.IsZero() && date.After(limit) {
			continue
		}
		if idx, ok := byDate[date]; ok {
			walk[idx].Completed = walk[idx].Completed || day.Completed
			continue
		}
		byDate[date] = len(walk)
		walk = append(walk, Day{Date: date, Completed: day.Completed})
	}

	slices.SortFunc(walk, func(a, b Day) int {
		return b.Date.Compare(a.Date)
	})
	return walk
}
