package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"forest-api/internal/geo"
	"forest-api/internal/logger"
)

// 文档注释：JSON 数组文件数据源
// 背景：与前端构建期生成的数据文件同格式 [{id,name,latitude,longitude,address}]。
// 约束：文件缺失或整体非数组视为数据不可用；逐条解码，缺少经纬度或类型错误的条目跳过并计数。
type JSONFileSource struct {
	Path string
}

func (s JSONFileSource) Name() string { return "json:" + s.Path }

func (s JSONFileSource) Read(ctx context.Context) ([]Record, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	out := make([]Record, 0, len(elems))
	skipped := 0
	for _, e := range elems {
		var r rawRecord
		if err := json.Unmarshal(e, &r); err != nil || r.Latitude == nil || r.Longitude == nil {
			skipped++
			continue
		}
		out = append(out, Record{
			ID:      r.ID,
			Name:    strings.TrimSpace(r.Name),
			Address: strings.TrimSpace(r.Address),
			Coord:   geo.Coordinate{Lat: *r.Latitude, Lon: *r.Longitude},
		})
	}
	if skipped > 0 {
		logger.L().Debug("dataset_json_skipped", "path", s.Path, "skipped", skipped)
	}
	return out, nil
}

// 文档注释：按扩展名选择文件数据源
// 约束：.json → JSON 数组；.csv → CSV（默认列序）；.geojson → GeoJSON FeatureCollection。
func SourceFromPath(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSONFileSource{Path: path}, nil
	case ".csv":
		return NewCSVSource(path), nil
	case ".geojson":
		return GeoJSONSource{Path: path, IDPrefix: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, path)
}

// 文档注释：写出 JSON 数组数据文件
// 背景：离线导入工具把 CSV/GeoJSON 统一转换为 JSON，服务启动时只需读取一种格式。
func WriteJSON(path string, recs []Record) error {
	raw := make([]rawRecord, 0, len(recs))
	for _, r := range recs {
		lat, lon := r.Coord.Lat, r.Coord.Lon
		raw = append(raw, rawRecord{ID: r.ID, Name: r.Name, Latitude: &lat, Longitude: &lon, Address: r.Address})
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
