package search

import (
	"time"

	"forest-api/internal/dataset"
	"forest-api/internal/geo"
	"forest-api/internal/logger"
	"forest-api/internal/metrics"
)

const (
	DefaultRadiusMeters = 5000.0
	DefaultLimit        = 200
)

// 文档注释：检索结果
// 约束：Matches 按距离升序；非空时 Nearest 指向与 Matches[0] 相同的命中，即使经过降采样也成立。
type Result struct {
	Matches            []Match
	Nearest            *Match
	SearchRadiusMeters float64
}

// Empty：未加载或无命中时的结果（半径回显）
func Empty(radiusMeters float64) Result {
	return Result{Matches: []Match{}, SearchRadiusMeters: radiusMeters}
}

func newResult(ms []Match, radiusMeters float64) Result {
	r := Result{Matches: ms, SearchRadiusMeters: radiusMeters}
	if len(ms) > 0 {
		n := ms[0]
		r.Nearest = &n
	}
	return r
}

// Clone：深拷贝命中列表，供异步补全地址时修改副本
func (r Result) Clone() Result {
	ms := append([]Match{}, r.Matches...)
	return newResult(ms, r.SearchRadiusMeters)
}

// WithAddresses：以 id→地址 覆盖缺失地址的副本；顺序与最近点保持不变
func (r Result) WithAddresses(addrs map[string]string) Result {
	out := r.Clone()
	if len(addrs) == 0 {
		return out
	}
	for i := range out.Matches {
		if out.Matches[i].Address != "" {
			continue
		}
		if a, ok := addrs[out.Matches[i].ID]; ok {
			out.Matches[i].Address = a
		}
	}
	if len(out.Matches) > 0 {
		n := out.Matches[0]
		out.Nearest = &n
	}
	return out
}

// 文档注释：检索引擎（显式服务对象）
// 背景：持有数据集存储与网格策略；同步、无 I/O，可被高频重复调用，频率由上层移动阈值控制。
type Engine struct {
	store  *dataset.Store
	policy CellPolicy
}

func NewEngine(store *dataset.Store, policy CellPolicy) *Engine {
	if policy == nil {
		policy = LimitDrivenCells{}
	}
	return &Engine{store: store, policy: policy}
}

func (e *Engine) Store() *dataset.Store { return e.store }

// Loaded：数据集是否已可检索
func (e *Engine) Loaded() bool { return e.store != nil && e.store.IsLoaded() }

// 文档注释：按坐标检索
// 参数：radiusMeters<=0 取默认 5000；limit<=0 取默认 200。
// 返回：数据未加载时返回空结果而非错误，调用方可轮询 Store().IsLoaded()。
func (e *Engine) Search(lat, lon, radiusMeters float64, limit int) Result {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	t0 := time.Now()
	metrics.SearchRequestsTotal.Inc()
	if e.store == nil || !e.store.IsLoaded() {
		metrics.SearchEmptyTotal.Inc()
		logger.L().Debug("search_no_data", "lat", lat, "lon", lon)
		return Empty(radiusMeters)
	}
	origin := geo.Coordinate{Lat: lat, Lon: lon}
	all := Filter(e.store.Records(), origin, radiusMeters)
	ms := Downsample(all, radiusMeters, limit, e.policy)
	if len(ms) == 0 {
		metrics.SearchEmptyTotal.Inc()
		metrics.SearchDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
		return Empty(radiusMeters)
	}
	dur := time.Since(t0)
	metrics.SearchDurationMs.Observe(float64(dur.Milliseconds()))
	logger.L().Debug("search_done", "lat", lat, "lon", lon, "radius_m", radiusMeters, "in_radius", len(all), "returned", len(ms), "duration_ms", dur.Milliseconds())
	return newResult(ms, radiusMeters)
}
