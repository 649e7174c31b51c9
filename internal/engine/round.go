package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// percent 返回 part/whole*100 并保留 places 位小数；whole<=0 时返回 0
func percent(part, whole int, places int32) float64 {
	if whole <= 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(whole))).
		Round(places).
		InexactFloat64()
}

// wholePercent 返回四舍五入到整数的百分比
func wholePercent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(decimal.NewFromInt(int64(part)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(whole))).
		Round(0).
		IntPart())
}

// mean 返回平均值并保留两位小数
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))).Round(2).InexactFloat64()
}
