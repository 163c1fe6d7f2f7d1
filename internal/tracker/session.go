// 包 tracker：按位置流驱动检索的会话状态机与会话注册表
package tracker

import (
	"context"
	"sync"
	"time"

	"forest-api/internal/geo"
	"forest-api/internal/logger"
	"forest-api/internal/metrics"
	"forest-api/internal/search"
)

// DefaultMinDistanceChange 触发重新检索的最小移动距离（米）
const DefaultMinDistanceChange = 50.0

// Searcher：同步检索契约（search.Engine 实现）
type Searcher interface {
	Search(lat, lon, radiusMeters float64, limit int) search.Result
}

// loadReporter：可选，Searcher 实现后未加载期间的检索不记录检索位置
type loadReporter interface {
	Loaded() bool
}

// Enricher：异步补全契约（address.Resolver 实现）
type Enricher interface {
	Enrich(ctx context.Context, res search.Result) search.Result
}

// 文档注释：单个会话的检索状态机
// 背景：位置持续上报，只有移动超过阈值（或参数变化、强制刷新）才重新检索，其余时间沿用上次结果。
// 约束：同一会话的调用以互斥锁串行；不同会话互不共享状态。异步补全只发布给最新一代检索。
type Session struct {
	mu          sync.Mutex
	searcher    Searcher
	enricher    Enricher
	onUpdate    func(search.Result)
	minDistance float64
	radius      float64
	limit       int

	lastSearch *geo.Coordinate
	current    *geo.Coordinate
	result     search.Result
	hasResult  bool
	gen        uint64
	lastSeen   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SessionOption 配置 Session
type SessionOption func(*Session)

func WithEnricher(e Enricher) SessionOption { return func(s *Session) { s.enricher = e } }

// WithOnUpdate：异步补全结果发布后回调（在补全协程中执行）
func WithOnUpdate(fn func(search.Result)) SessionOption {
	return func(s *Session) { s.onUpdate = fn }
}

// WithMinDistance：<=0 取默认 50 米
func WithMinDistance(m float64) SessionOption {
	return func(s *Session) {
		if m > 0 {
			s.minDistance = m
		}
	}
}

// WithSearchParams：半径与上限，非正数交由检索引擎取默认
func WithSearchParams(radiusMeters float64, limit int) SessionOption {
	return func(s *Session) {
		s.radius = radiusMeters
		s.limit = limit
	}
}

func WithContext(ctx context.Context) SessionOption {
	return func(s *Session) { s.ctx = ctx }
}

func NewSession(searcher Searcher, opts ...SessionOption) *Session {
	s := &Session{
		searcher:    searcher,
		minDistance: DefaultMinDistanceChange,
		ctx:         context.Background(),
		lastSeen:    time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(s.ctx)
	s.result = search.Empty(s.effectiveRadius())
	return s
}

func (s *Session) effectiveRadius() float64 {
	if s.radius <= 0 {
		return search.DefaultRadiusMeters
	}
	return s.radius
}

// 文档注释：上报新位置
// 返回：当前结果与是否执行了检索。距上次检索位置不足阈值时不检索，也不更新检索位置。
func (s *Session) Update(pos geo.Coordinate) (search.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	p := pos
	s.current = &p
	if s.lastSearch != nil && geo.DistanceMeters(*s.lastSearch, pos) < s.minDistance {
		metrics.SessionSearchesTotal.WithLabelValues("skipped").Inc()
		return s.result.Clone(), false
	}
	return s.searchLocked(pos), true
}

// SetParams：修改半径/上限；与当前不同则清除检索位置，下次 Update 必然重新检索
func (s *Session) SetParams(radiusMeters float64, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if radiusMeters == s.radius && limit == s.limit {
		return
	}
	s.radius = radiusMeters
	s.limit = limit
	s.lastSearch = nil
}

// 文档注释：强制重新检索
// 返回：尚无任何位置时返回当前结果与 false。
func (s *Session) Refresh() (search.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	s.lastSearch = nil
	if s.current == nil {
		return s.result.Clone(), false
	}
	return s.searchLocked(*s.current), true
}

// Result：最近一次发布的结果（可能已补全地址）
func (s *Session) Result() search.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result.Clone()
}

// HasResult：是否执行过至少一次检索
func (s *Session) HasResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasResult
}

// LastSearchPosition：最近一次检索的位置；未检索或已清除返回 false
func (s *Session) LastSearchPosition() (geo.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSearch == nil {
		return geo.Coordinate{}, false
	}
	return *s.lastSearch, true
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Wait：等待已发起的异步补全结束
func (s *Session) Wait() { s.wg.Wait() }

// Close：取消未完成的补全；已取消的补全结果不会发布
func (s *Session) Close() { s.cancel() }

func (s *Session) searchLocked(pos geo.Coordinate) search.Result {
	metrics.SessionSearchesTotal.WithLabelValues("searched").Inc()
	res := s.searcher.Search(pos.Lat, pos.Lon, s.radius, s.limit)
	if lr, ok := s.searcher.(loadReporter); ok && !lr.Loaded() {
		// 数据集加载完成前的空结果不作为移动基准，下次上报必然重新检索
		s.lastSearch = nil
		s.result = res
		return res.Clone()
	}
	p := pos
	s.lastSearch = &p
	s.result = res
	s.hasResult = true
	s.gen++
	if s.enricher != nil && needsAddress(res) {
		s.enrichAsync(s.gen, res.Clone())
	}
	return res.Clone()
}

func (s *Session) enrichAsync(gen uint64, res search.Result) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out := s.enricher.Enrich(s.ctx, res)
		if s.ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			logger.L().Debug("session_enrich_stale", "gen", gen)
			return
		}
		s.result = out
		cb := s.onUpdate
		s.mu.Unlock()
		if cb != nil {
			cb(out.Clone())
		}
	}()
}

func needsAddress(res search.Result) bool {
	for _, m := range res.Matches {
		if m.Address == "" {
			return true
		}
	}
	return false
}
