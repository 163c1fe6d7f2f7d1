package dataset

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"forest-api/internal/logger"
	"forest-api/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// 文档注释：数据集存储（显式服务对象）
// 背景：替代进程级全局缓存；首次 Load 读取数据源并缓存，后续调用直接返回；可注入任意 Source 便于测试。
// 约束：并发的首次 Load 经 singleflight 合并为一次读取；读路径通过 atomic.Pointer 无锁访问；Reload 仅在成功时整体替换。
type Store struct {
	src   Source
	group singleflight.Group
	recs  atomic.Pointer[[]Record]
}

func NewStore(src Source) *Store { return &Store{src: src} }

// 文档注释：构造已加载的存储（测试与离线工具使用）
func NewStaticStore(recs []Record) *Store {
	s := &Store{}
	cleaned, _ := sanitize(recs)
	s.recs.Store(&cleaned)
	return s
}

// Load：幂等加载；失败时保持未初始化并返回包装 ErrDataUnavailable 的错误
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	if p := s.recs.Load(); p != nil {
		return *p, nil
	}
	v, err, _ := s.group.Do("load", func() (any, error) {
		if p := s.recs.Load(); p != nil {
			return *p, nil
		}
		recs, err := s.read(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		// 期间已有 Reload 完成时保留其结果
		if !s.recs.CompareAndSwap(nil, &recs) {
			return *s.recs.Load(), nil
		}
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Record), nil
}

// Reload：重新读取数据源；失败时保留旧数据
// 约束：与 Load 使用不同的合并键，首次加载进行中发起的 Reload 仍会重新读取；
// 共享读取不随发起方的 ctx 取消。
func (s *Store) Reload(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("reload", func() (any, error) {
		recs, err := s.read(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.recs.Store(&recs)
		return recs, nil
	})
	if err != nil {
		return 0, err
	}
	return len(v.([]Record)), nil
}

func (s *Store) read(ctx context.Context) ([]Record, error) {
	if s.src == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrDataUnavailable)
	}
	t0 := time.Now()
	l := logger.L()
	l.Info("dataset_load_begin", "source", s.src.Name())
	raw, err := s.src.Read(ctx)
	if err != nil {
		l.Error("dataset_load_error", "source", s.src.Name(), "err", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, s.src.Name(), err)
	}
	recs, skipped := sanitize(raw)
	metrics.DatasetRecords.Set(float64(len(recs)))
	l.Info("dataset_load_done", "source", s.src.Name(), "records", len(recs), "skipped", skipped, "duration_ms", time.Since(t0).Milliseconds())
	return recs, nil
}

// IsLoaded：是否已有可用数据
func (s *Store) IsLoaded() bool { return s.recs.Load() != nil }

// Count：已加载条目数；未加载为 0
func (s *Store) Count() int {
	if p := s.recs.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// Records：当前快照；未加载返回 nil
func (s *Store) Records() []Record {
	if p := s.recs.Load(); p != nil {
		return *p
	}
	return nil
}

// sanitize：丢弃空 ID、非法坐标与重复 ID（先到先得）
func sanitize(in []Record) ([]Record, int) {
	out := make([]Record, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	skipped := 0
	for _, r := range in {
		if r.ID == "" || !r.Coord.Valid() {
			skipped++
			continue
		}
		if _, dup := seen[r.ID]; dup {
			skipped++
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out, skipped
}
