// 包 iplocate：请求未携带坐标时，按客户端 IP 估算大致位置（MaxMind GeoIP2 City 库）
package iplocate

import (
	"errors"
	"fmt"
	"net"

	"forest-api/internal/geo"
	"forest-api/internal/logger"
	"forest-api/internal/metrics"

	"github.com/oschwald/geoip2-golang"
)

var (
	// ErrNoDatabase 未配置 GEOIP_DB_PATH
	ErrNoDatabase = errors.New("geoip database not configured")
	// ErrNotFound 库中无该 IP 的坐标
	ErrNotFound = errors.New("ip location not found")
)

// cityReader：geoip2.Reader 的最小子集，便于测试替换
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// 文档注释：IP → 坐标定位器
// 约束：零值与 nil 接收者可用，恒返回 ErrNoDatabase；Reader 并发安全。
type Locator struct {
	r cityReader
}

// Open：path 为空时返回不可用的定位器而非错误
func Open(path string) (*Locator, error) {
	if path == "" {
		return &Locator{}, nil
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	logger.L().Info("geoip_db_opened", "path", path, "type", r.Metadata().DatabaseType)
	return &Locator{r: r}, nil
}

func (l *Locator) Enabled() bool { return l != nil && l.r != nil }

// 文档注释：解析 IP 文本为坐标
// 返回：(坐标, 精度半径 km)；无库、非法 IP、无坐标分别返回对应错误。
func (l *Locator) Locate(ipStr string) (geo.Coordinate, uint16, error) {
	if !l.Enabled() {
		return geo.Coordinate{}, 0, ErrNoDatabase
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		metrics.GeoIPLookupsTotal.WithLabelValues("bad_ip").Inc()
		return geo.Coordinate{}, 0, fmt.Errorf("%w: bad ip %q", ErrNotFound, ipStr)
	}
	rec, err := l.r.City(ip)
	if err != nil {
		metrics.GeoIPLookupsTotal.WithLabelValues("error").Inc()
		return geo.Coordinate{}, 0, fmt.Errorf("geoip city lookup: %w", err)
	}
	c := geo.Coordinate{Lat: rec.Location.Latitude, Lon: rec.Location.Longitude}
	// 库中缺失坐标时返回 0,0
	if (c.Lat == 0 && c.Lon == 0) || !c.Valid() {
		metrics.GeoIPLookupsTotal.WithLabelValues("miss").Inc()
		return geo.Coordinate{}, 0, ErrNotFound
	}
	metrics.GeoIPLookupsTotal.WithLabelValues("hit").Inc()
	logger.L().Debug("geoip_hit", "ip", ipStr, "lat", c.Lat, "lon", c.Lon, "accuracy_km", rec.Location.AccuracyRadius)
	return c, rec.Location.AccuracyRadius, nil
}

func (l *Locator) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.r.Close()
}
