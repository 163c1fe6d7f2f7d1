package geo

import "math"

// EarthRadiusMeters 地球平均半径
const EarthRadiusMeters = 6371000.0

// 文档注释：球面距离（Haversine），返回米
// 背景：全系统唯一的距离度量；检索、降采样、移动阈值判定均调用此函数。
// 约束：对称；同点距离为 0（浮点误差内）。
func DistanceMeters(a, b Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return EarthRadiusMeters * c
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
