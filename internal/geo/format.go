package geo

import (
	"fmt"
	"math"
)

// WalkingMetersPerMinute 不動産表示の徒歩基準（80m/分）
const WalkingMetersPerMinute = 80.0

// DisplayMode 距离展示方式
type DisplayMode string

const (
	ModeDistance DisplayMode = "distance"
	ModeWalking  DisplayMode = "walking"
)

// 文档注释：距离文本（1km 以下取整米，以上保留 1 位小数 km）
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

// 文档注释：徒步时间文本
// 约束：分钟数向上取整；满 60 分钟换算为小时，整小时不附加分钟。
func FormatWalkingTime(meters float64) string {
	minutes := int(math.Ceil(meters / WalkingMetersPerMinute))
	if minutes < 60 {
		return fmt.Sprintf("徒歩%d分", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("徒歩%d時間", hours)
	}
	return fmt.Sprintf("徒歩%d時間%d分", hours, mins)
}

func FormatByMode(meters float64, mode DisplayMode) string {
	if mode == ModeWalking {
		return FormatWalkingTime(meters)
	}
	return FormatDistance(meters)
}
