// 包 ingest：服务进程内的定期数据集刷新（后台协程）
package ingest

import (
	"context"
	"time"

	"forest-api/internal/logger"
)

// Reloader：可重新读取数据源的存储（dataset.Store 实现）
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

// nextAt：下一个 weekday 的 hour 点（严格晚于 now）
func nextAt(now time.Time, weekday time.Weekday, hour int) time.Time {
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() != weekday {
			continue
		}
		t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
		if t.After(now) {
			return t
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
}

// 文档注释：每周定时重载数据集
// 背景：上游地块数据按周更新；重载失败保留旧数据，只记录日志，继续下一周期。
// 约束：loc 为 nil 时使用 Asia/Tokyo（加载失败回退 UTC）；ctx 结束后协程退出。
func StartWeekly(ctx context.Context, r Reloader, loc *time.Location, weekday time.Weekday, hour int) {
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation("Asia/Tokyo"); err != nil {
			loc = time.UTC
		}
	}
	l := logger.L()
	go func() {
		for {
			next := nextAt(time.Now().In(loc), weekday, hour)
			l.Info("dataset_refresh_scheduled", "next", next)
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			if n, err := r.Reload(ctx); err != nil {
				l.Error("dataset_refresh_error", "err", err)
			} else {
				l.Info("dataset_refresh_done", "count", n)
			}
		}
	}()
}
