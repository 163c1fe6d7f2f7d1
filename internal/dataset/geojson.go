package dataset

import (
	"context"
	"fmt"
	"math"
	"os"

	"forest-api/internal/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 文档注释：GeoJSON 数据源（国土数值情报等面数据）
// 背景：Point 直接取坐标；Polygon/MultiPolygon 取首个外环顶点均值作为代表点，保留 6 位小数。
// 约束：properties 中 id/name/address 可缺省；缺少 id 时以 IDPrefix-序号 生成。
type GeoJSONSource struct {
	Path     string
	IDPrefix string
}

func (s GeoJSONSource) Name() string { return "geojson:" + s.Path }

func (s GeoJSONSource) Read(ctx context.Context) ([]Record, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return FromFeatures(fc.Features, s.IDPrefix), nil
}

// FromFeatures：将 GeoJSON 要素转换为数据集条目；无法取得代表点的要素跳过
func FromFeatures(fs []*geojson.Feature, idPrefix string) []Record {
	if idPrefix == "" {
		idPrefix = "feature"
	}
	out := make([]Record, 0, len(fs))
	n := 0
	for _, f := range fs {
		if f == nil || f.Geometry == nil {
			continue
		}
		c, ok := representativePoint(f.Geometry)
		if !ok {
			continue
		}
		n++
		id := f.Properties.MustString("id", "")
		if id == "" && f.ID != nil {
			id = fmt.Sprint(f.ID)
		}
		if id == "" {
			id = fmt.Sprintf("%s-%d", idPrefix, n)
		}
		out = append(out, Record{
			ID:      id,
			Name:    f.Properties.MustString("name", ""),
			Address: f.Properties.MustString("address", ""),
			Coord:   geo.Coordinate{Lat: round6(c.Lat()), Lon: round6(c.Lon())},
		})
	}
	return out
}

func representativePoint(g orb.Geometry) (orb.Point, bool) {
	switch v := g.(type) {
	case orb.Point:
		return v, true
	case orb.Polygon:
		if len(v) == 0 {
			return orb.Point{}, false
		}
		return ringMean(v[0])
	case orb.MultiPolygon:
		if len(v) == 0 || len(v[0]) == 0 {
			return orb.Point{}, false
		}
		return ringMean(v[0][0])
	}
	return orb.Point{}, false
}

// ringMean：外环顶点算术平均（与上游转换脚本一致，非几何质心）
func ringMean(r orb.Ring) (orb.Point, bool) {
	if len(r) == 0 {
		return orb.Point{}, false
	}
	var sx, sy float64
	for _, p := range r {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(r))
	return orb.Point{sx / n, sy / n}, true
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
