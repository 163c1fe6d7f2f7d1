// 包 search：半径过滤、网格降采样与检索编排
package search

import (
	"sort"

	"forest-api/internal/dataset"
	"forest-api/internal/geo"
)

// 文档注释：检索命中（条目 + 距查询点的距离）
// 约束：仅在单次检索内有效，不持久化。
type Match struct {
	ID             string
	Name           string
	Address        string
	Coord          geo.Coordinate
	DistanceMeters float64
}

// 文档注释：半径过滤（线性扫描）
// 背景：数据量在 10^5 级别，逐条计算距离即可满足时延要求，不构建空间索引。
// 返回：distance <= radius 的全部命中，顺序与输入一致（未排序）。
func Filter(recs []dataset.Record, origin geo.Coordinate, radiusMeters float64) []Match {
	var out []Match
	for i := range recs {
		r := &recs[i]
		d := geo.DistanceMeters(origin, r.Coord)
		if d <= radiusMeters {
			out = append(out, Match{ID: r.ID, Name: r.Name, Address: r.Address, Coord: r.Coord, DistanceMeters: d})
		}
	}
	return out
}

// SortByDistance：按距离升序，距离相同按 ID 排序以保证输出稳定
func SortByDistance(ms []Match) {
	sort.Slice(ms, func(i, j int) bool { return closer(ms[i], ms[j]) })
}

func closer(a, b Match) bool {
	if a.DistanceMeters != b.DistanceMeters {
		return a.DistanceMeters < b.DistanceMeters
	}
	return a.ID < b.ID
}
