package utils

import (
	"forest-api/internal/logger"

	"github.com/redis/go-redis/v9"
)

// 文档注释：从环境变量打开 Redis 客户端（REDIS_HOST/REDIS_PORT/REDIS_PASS/REDIS_DB）
// 约束：只创建客户端不探活；REDIS_DB 非法时回退到 0
func OpenRedisFromEnv() *redis.Client {
	addr := EnvString("REDIS_HOST", "127.0.0.1") + ":" + EnvString("REDIS_PORT", "6379")
	db := EnvInt("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: EnvString("REDIS_PASS", ""), DB: db})
}
