// 包 dataset：地块数据集的加载与进程内只读缓存
package dataset

import (
	"context"
	"errors"

	"forest-api/internal/geo"
)

// ErrDataUnavailable 数据源缺失或整体格式错误；调用方应降级为“无数据”而非中断
var ErrDataUnavailable = errors.New("dataset unavailable")

// ErrUnknownSource 无法根据扩展名识别的数据文件
var ErrUnknownSource = errors.New("unknown dataset source")

// 文档注释：数据集条目（加载后不可变）
// 约束：ID 全局唯一；Name/Address 允许为空字符串表示缺省。
type Record struct {
	ID      string
	Name    string
	Address string
	Coord   geo.Coordinate
}

// rawRecord：外部输入格式，与前端构建期 JSON 保持一致
type rawRecord struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

// 文档注释：数据源契约
// 背景：文件（JSON/CSV/GeoJSON）与数据库共享同一读取接口，Store 不关心底层介质。
// 约束：Read 返回整体错误时视为数据不可用；单条坏记录由 Read 自行跳过或由 Store 过滤。
type Source interface {
	Name() string
	Read(ctx context.Context) ([]Record, error)
}
