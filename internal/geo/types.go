// 包 geo：坐标模型与距离原语，供数据集、检索、地址解析等模块共享
package geo

import (
	"fmt"
	"math"
)

// 文档注释：坐标（WGS84，单位为度）
// 约束：纬度 ∈ [-90,90]，经度 ∈ [-180,180]；越界坐标由 Valid 判定后交由调用方丢弃。
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid：有限值且位于经纬度合法区间
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// 文档注释：缓存键（四舍五入到小数点后 4 位，约 11m 粒度）
// 背景：地址解析结果按近似坐标复用，避免同一地块的重复外部请求。
func (c Coordinate) CacheKey() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lon)
}
