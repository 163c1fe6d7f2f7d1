package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"forest-api/internal/geo"
)

// 文档注释：CSV 数据源
// 背景：上游地块清单以 CSV 发布（首行表头）；默认列序 id,_,name,latitude,longitude,...,address(第 10 列)。
// 约束：列数不足或经纬度无法解析的行跳过；表头缺失（空文件）视为数据不可用。
type CSVSource struct {
	Path       string
	IDCol      int
	NameCol    int
	LatCol     int
	LonCol     int
	AddressCol int
}

func NewCSVSource(path string) CSVSource {
	return CSVSource{Path: path, IDCol: 0, NameCol: 2, LatCol: 3, LonCol: 4, AddressCol: 9}
}

func (s CSVSource) Name() string { return "csv:" + s.Path }

func (s CSVSource) Read(ctx context.Context) ([]Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.parse(ctx, f)
}

func (s CSVSource) parse(ctx context.Context, r io.Reader) ([]Record, error) {
	rd := csv.NewReader(r)
	rd.FieldsPerRecord = -1
	rd.LazyQuotes = true
	if _, err := rd.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv")
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}
	var out []Record
	line := 1
	for {
		row, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return nil, err
		}
		if line%10000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rec, ok := s.row(row)
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s CSVSource) row(row []string) (Record, bool) {
	if len(row) <= s.IDCol || len(row) <= s.LatCol || len(row) <= s.LonCol {
		return Record{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(row[s.LatCol]), 64)
	if err != nil {
		return Record{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(row[s.LonCol]), 64)
	if err != nil {
		return Record{}, false
	}
	return Record{
		ID:      strings.TrimSpace(row[s.IDCol]),
		Name:    cell(row, s.NameCol),
		Address: cell(row, s.AddressCol),
		Coord:   geo.Coordinate{Lat: lat, Lon: lon},
	}, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
