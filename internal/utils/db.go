package utils

import (
	"database/sql"
	"net/url"

	_ "github.com/lib/pq"
)

// BuildPostgresDSNFromEnv：PG_HOST/PG_PORT/PG_USER/PG_PASSWORD/PG_DB/PG_SSLMODE
func BuildPostgresDSNFromEnv() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     EnvString("PG_HOST", "localhost") + ":" + EnvString("PG_PORT", "5432"),
		Path:     "/" + EnvString("PG_DB", "forest"),
		RawQuery: "sslmode=" + EnvString("PG_SSLMODE", "disable"),
	}
	user := EnvString("PG_USER", "postgres")
	if pass := EnvString("PG_PASSWORD", ""); pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

// 文档注释：按环境变量打开 Postgres 连接池
// 约束：sql.Open 不建立连接，调用方需自行 Ping；连接池上限由 PG_MAX_OPEN_CONNS / PG_MAX_IDLE_CONNS 控制
func OpenPostgresFromEnv() (*sql.DB, error) {
	db, err := sql.Open("postgres", BuildPostgresDSNFromEnv())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(EnvInt("PG_MAX_OPEN_CONNS", 20))
	db.SetMaxIdleConns(EnvInt("PG_MAX_IDLE_CONNS", 10))
	return db, nil
}
