package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"forest-api/internal/logger"
)

// Statements 建表语句，按顺序执行
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS _forest_records (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        address TEXT NOT NULL DEFAULT '',
        latitude DOUBLE PRECISION NOT NULL,
        longitude DOUBLE PRECISION NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_forest_lat ON _forest_records(latitude)`,
	`CREATE TABLE IF NOT EXISTS _search_stats_total (
        id INT PRIMARY KEY,
        total_searches BIGINT NOT NULL DEFAULT 0,
        total_sessions BIGINT NOT NULL DEFAULT 0
    )`,
	`CREATE TABLE IF NOT EXISTS _search_stats_daily (
        day DATE PRIMARY KEY,
        searches BIGINT NOT NULL DEFAULT 0,
        sessions BIGINT NOT NULL DEFAULT 0
    )`,
	`INSERT INTO _search_stats_total(id, total_searches, total_sessions)
     VALUES(1, 0, 0)
     ON CONFLICT (id) DO NOTHING`,
}

// 背景：首次运行自动创建数据集与统计表
// 约束：全部使用 IF NOT EXISTS / ON CONFLICT，可重复执行
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range Statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema stmt %d: %w", i, err)
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
