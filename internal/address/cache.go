// 包 address：地址补全（缓存 + 国土地理院反地理编码 + 自治体编码表）
package address

import (
	"context"
	"sync"
	"time"

	"forest-api/internal/logger"

	"github.com/redis/go-redis/v9"
)

// 文档注释：地址缓存契约
// 约束：值可以为空字符串，表示“已查询、无结果”，同样视为命中；写入幂等，后写覆盖安全。
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, val string)
}

// 文档注释：进程内缓存（只增不删，生命周期与进程一致）
// 背景：同一键的所有写入者计算出相同的值，sync.Map 的原子写入即可满足并发安全。
type MemCache struct {
	m sync.Map
}

func NewMemCache() *MemCache { return &MemCache{} }

func (c *MemCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := c.m.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *MemCache) Set(_ context.Context, key, val string) { c.m.Store(key, val) }

// Len：条目数（仅用于观测）
func (c *MemCache) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool { n++; return true })
	return n
}

// 文档注释：Redis 二级缓存
// 背景：多实例部署时共享已解析地址，进程重启后无需重新请求外部服务。
// 约束：Redis 异常视为未命中并记录日志，不阻断主流程；rc 为 nil 时恒未命中。
type RedisCache struct {
	rc     *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisCache{rc: rc, ttl: ttl, prefix: "addr:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.rc == nil {
		return "", false
	}
	s, err := c.rc.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logger.L().Debug("address_redis_get_error", "key", key, "err", err)
		return "", false
	}
	return s, true
}

func (c *RedisCache) Set(ctx context.Context, key, val string) {
	if c == nil || c.rc == nil {
		return
	}
	if err := c.rc.Set(ctx, c.prefix+key, val, c.ttl).Err(); err != nil {
		logger.L().Debug("address_redis_set_error", "key", key, "err", err)
	}
}

// 文档注释：多级缓存（按顺序读取，命中后回填更靠前的层级；写入全部层级）
type ChainCache struct {
	tiers []Cache
}

func NewChainCache(tiers ...Cache) *ChainCache {
	var ts []Cache
	for _, t := range tiers {
		if t != nil {
			ts = append(ts, t)
		}
	}
	return &ChainCache{tiers: ts}
}

func (c *ChainCache) Get(ctx context.Context, key string) (string, bool) {
	for i, t := range c.tiers {
		if v, ok := t.Get(ctx, key); ok {
			for j := 0; j < i; j++ {
				c.tiers[j].Set(ctx, key, v)
			}
			return v, true
		}
	}
	return "", false
}

func (c *ChainCache) Set(ctx context.Context, key, val string) {
	for _, t := range c.tiers {
		t.Set(ctx, key, val)
	}
}
