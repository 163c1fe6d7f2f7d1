package address

import (
	"context"
	"sync"

	"forest-api/internal/geo"
	"forest-api/internal/logger"
	"forest-api/internal/metrics"
	"forest-api/internal/search"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize 单批并发请求数
const DefaultBatchSize = 10

// 文档注释：地址解析器
// 背景：检索结果立即返回，缺失地址的条目在后台按批补全；失败记为空串，进程内不再重试同一坐标。
// 约束：每批最多 BatchSize 个并发请求，整批完成后再发下一批；缓存是批与批之间唯一的共享可变状态。
type Resolver struct {
	geocoder  Geocoder
	table     *MunicipalityTable
	cache     Cache
	batchSize int
}

func NewResolver(g Geocoder, table *MunicipalityTable, cache Cache, batchSize int) *Resolver {
	if cache == nil {
		cache = NewMemCache()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Resolver{geocoder: g, table: table, cache: cache, batchSize: batchSize}
}

func (r *Resolver) BatchSize() int { return r.batchSize }

// 文档注释：解析单个坐标
// 返回：完整地址（都道府県+市区町村+町丁目）；无结果或失败返回空串。
func (r *Resolver) Resolve(ctx context.Context, c geo.Coordinate) string {
	key := c.CacheKey()
	if v, ok := r.cache.Get(ctx, key); ok {
		metrics.AddressCacheHitsTotal.Inc()
		return v
	}
	metrics.AddressCacheMissesTotal.Inc()
	if r.geocoder == nil {
		return ""
	}
	muniCd, lv01, err := r.geocoder.ReverseGeocode(ctx, c.Lat, c.Lon)
	if err != nil {
		// 取消导致的失败不写缓存
		if ctx.Err() != nil {
			return ""
		}
		metrics.AddressLookupFailTotal.Inc()
		logger.L().Debug("address_lookup_failed", "key", key, "err", err)
		r.cache.Set(ctx, key, "")
		return ""
	}
	full := r.table.Name(muniCd) + lv01
	r.cache.Set(ctx, key, full)
	return full
}

// 文档注释：批量补全缺失地址
// 返回：id → 非空地址；已有地址的条目不参与请求。
func (r *Resolver) ResolveMatches(ctx context.Context, ms []search.Match) map[string]string {
	out := make(map[string]string)
	var pending []search.Match
	for _, m := range ms {
		if m.Address == "" {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return out
	}
	var mu sync.Mutex
	for i := 0; i < len(pending); i += r.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := i + r.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		var g errgroup.Group
		for _, m := range pending[i:end] {
			m := m
			g.Go(func() error {
				if a := r.Resolve(ctx, m.Coord); a != "" {
					mu.Lock()
					out[m.ID] = a
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	logger.L().Debug("address_batch_done", "pending", len(pending), "resolved", len(out))
	return out
}

// Enrich：返回补全地址后的结果副本，顺序与最近点不变
func (r *Resolver) Enrich(ctx context.Context, res search.Result) search.Result {
	return res.WithAddresses(r.ResolveMatches(ctx, res.Matches))
}
