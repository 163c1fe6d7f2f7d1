// 包 store：PostgreSQL 数据访问层，提供数据集表读写与检索统计
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"forest-api/internal/dataset"
	"forest-api/internal/logger"

	_ "github.com/lib/pq"
)

// ImportBatchSize 导入时每提交一次事务的行数
const ImportBatchSize = 5000

const upsertRecordSQL = `INSERT INTO _forest_records(id, name, address, latitude, longitude)
    VALUES($1,$2,$3,$4,$5)
    ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, address=EXCLUDED.address,
        latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude, updated_at=now()`

// Store：数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Name：作为 dataset.Source 的名称
func (s *Store) Name() string { return "postgres:_forest_records" }

// 文档注释：读取全部数据集记录（实现 dataset.Source）
// 约束：坐标越界的行跳过；查询失败返回错误，由 dataset.Store 包装为 ErrDataUnavailable。
func (s *Store) Read(ctx context.Context) ([]dataset.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, address, latitude, longitude FROM _forest_records ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	var out []dataset.Record
	skipped := 0
	for rows.Next() {
		var r dataset.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Address, &r.Coord.Lat, &r.Coord.Lon); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if !r.Coord.Valid() {
			skipped++
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("db_records_read", "count", len(out), "skipped", skipped)
	return out, nil
}

// 文档注释：批量导入记录（按 id UPSERT）
// 背景：十万级记录单事务提交锁与日志压力大，每 ImportBatchSize 行提交一次。
// 返回：成功写入的行数；中途失败时已提交的批次保留。
func (s *Store) ImportRecords(ctx context.Context, recs []dataset.Record) (int, error) {
	count := 0
	for start := 0; start < len(recs); start += ImportBatchSize {
		end := start + ImportBatchSize
		if end > len(recs) {
			end = len(recs)
		}
		n, err := s.importBatch(ctx, recs[start:end])
		count += n
		if err != nil {
			return count, err
		}
		logger.L().Info("db_import_batch", "committed", count, "total", len(recs))
	}
	return count, nil
}

func (s *Store) importBatch(ctx context.Context, recs []dataset.Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for _, r := range recs {
		if r.ID == "" || !r.Coord.Valid() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.Address, r.Coord.Lat, r.Coord.Lon); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", r.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateAddress：回写解析得到的地址
func (s *Store) UpdateAddress(ctx context.Context, id, address string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE _forest_records SET address=$2, updated_at=now() WHERE id=$1", id, address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// MissingAddress：地址为空的记录
func (s *Store) MissingAddress(ctx context.Context, limit int) ([]dataset.Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, latitude, longitude FROM _forest_records WHERE address='' ORDER BY id LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dataset.Record
	for rows.Next() {
		var r dataset.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Coord.Lat, &r.Coord.Lon); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IncrStats：检索计数（累计与当日）；newSession 为真时同时累加会话数
// 约束：统计为尽力而为，失败只记录日志
func (s *Store) IncrStats(ctx context.Context, newSession bool) {
	exec := func(q string) {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			logger.L().Debug("stats_incr_error", "err", err)
		}
	}
	exec("UPDATE _search_stats_total SET total_searches=total_searches+1 WHERE id=1")
	exec("INSERT INTO _search_stats_daily(day, searches) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET searches=_search_stats_daily.searches+1")
	if newSession {
		exec("UPDATE _search_stats_total SET total_sessions=total_sessions+1 WHERE id=1")
		exec("INSERT INTO _search_stats_daily(day, sessions) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET sessions=_search_stats_daily.sessions+1")
	}
}

// Totals：累计与当日检索数、会话数
type Totals struct {
	TotalSearches int64 `json:"total_searches"`
	TodaySearches int64 `json:"today_searches"`
	TotalSessions int64 `json:"total_sessions"`
	TodaySessions int64 `json:"today_sessions"`
}

// GetTotals：当日无记录时按 0 返回
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, "SELECT total_searches, total_sessions FROM _search_stats_total WHERE id=1")
	if err := row.Scan(&t.TotalSearches, &t.TotalSessions); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	row2 := s.db.QueryRowContext(ctx, "SELECT searches, sessions FROM _search_stats_daily WHERE day=current_date")
	if err := row2.Scan(&t.TodaySearches, &t.TodaySessions); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	logger.L().Debug("stats_totals", "total", t.TotalSearches, "today", t.TodaySearches)
	return &t, nil
}
