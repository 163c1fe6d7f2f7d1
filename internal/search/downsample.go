package search

import (
	"math"
	"strings"
)

// MinCellSizeDeg 网格最小边长（度），防止小半径下格子过密
const MinCellSizeDeg = 0.001

// MetersPerDegree 纬度 1 度的近似米数
const MetersPerDegree = 111000.0

// 文档注释：网格边长策略
// 约束：返回正数（度）；不同策略只影响地理分布效果，不影响“最近点保留、结果数 <= limit”。
type CellPolicy interface {
	CellSizeDeg(radiusMeters float64, limit int) float64
}

// LimitDrivenCells：使网格数量接近 limit 的边长
type LimitDrivenCells struct{}

func (LimitDrivenCells) CellSizeDeg(radiusMeters float64, limit int) float64 {
	if limit <= 0 {
		return MinCellSizeDeg
	}
	s := 2 * (radiusMeters / MetersPerDegree) / math.Sqrt(float64(limit))
	return math.Max(MinCellSizeDeg, s)
}

// TieredCells：按半径分三档（>100km 0.1°，>50km 0.05°，其余 0.01°）
type TieredCells struct{}

func (TieredCells) CellSizeDeg(radiusMeters float64, limit int) float64 {
	switch {
	case radiusMeters > 100_000:
		return 0.1
	case radiusMeters > 50_000:
		return 0.05
	}
	return 0.01
}

// PolicyFromName：配置值到策略；未知值回退到 LimitDrivenCells
func PolicyFromName(name string) CellPolicy {
	if strings.EqualFold(strings.TrimSpace(name), "tiered") {
		return TieredCells{}
	}
	return LimitDrivenCells{}
}

type cellKey struct{ lat, lon int64 }

func keyOf(m Match, size float64) cellKey {
	return cellKey{
		lat: int64(math.Floor(m.Coord.Lat / size)),
		lon: int64(math.Floor(m.Coord.Lon / size)),
	}
}

// 文档注释：网格降采样
// 背景：密集区域的命中会挤占结果上限，按格子各取最近一条以保留稀疏区域的代表点。
// 约束：结果按距离升序且不超过 limit；降采样前的最近命中必定保留（必要时替换最远一条）；limit<=0 视为不限。
func Downsample(ms []Match, radiusMeters float64, limit int, policy CellPolicy) []Match {
	out := append([]Match(nil), ms...)
	SortByDistance(out)
	if limit <= 0 || len(out) <= limit {
		return out
	}
	if policy == nil {
		policy = LimitDrivenCells{}
	}
	nearest := out[0]
	size := policy.CellSizeDeg(radiusMeters, limit)
	if size <= 0 || math.IsNaN(size) {
		size = MinCellSizeDeg
	}

	best := make(map[cellKey]int, limit)
	for i := range out {
		k := keyOf(out[i], size)
		if j, ok := best[k]; !ok || closer(out[i], out[j]) {
			best[k] = i
		}
	}
	reps := make([]Match, 0, len(best))
	for _, i := range best {
		reps = append(reps, out[i])
	}
	SortByDistance(reps)
	if len(reps) > limit {
		reps = reps[:limit]
	}

	found := false
	for i := range reps {
		if reps[i].ID == nearest.ID {
			found = true
			break
		}
	}
	if !found {
		reps[len(reps)-1] = nearest
		SortByDistance(reps)
	}
	return reps
}
