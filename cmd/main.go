// 程序入口：读取配置、初始化依赖并启动服务；路由注册在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"forest-api/internal/address"
	"forest-api/internal/api"
	"forest-api/internal/dataset"
	"forest-api/internal/ingest"
	"forest-api/internal/iplocate"
	"forest-api/internal/logger"
	"forest-api/internal/metrics"
	"forest-api/internal/middleware"
	"forest-api/internal/migrate"
	"forest-api/internal/search"
	"forest-api/internal/store"
	"forest-api/internal/tracker"
	"forest-api/internal/utils"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiBase := utils.EnvString("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)

	// Postgres：可选，用于数据集来源与检索统计
	var st *store.Store
	if utils.EnvBool("PG_ENABLE", false) {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
			if err := migrate.EnsureSchema(ctx, db); err != nil {
				l.Error("schema_error", "err", err)
				os.Exit(1)
			}
			st = store.AttachDB(db)
		}
	} else {
		l.Info("db_disabled")
	}

	// Redis：可选，作为地址二级缓存
	var rc *redis.Client
	if utils.EnvBool("REDIS_ENABLE", false) {
		rc = utils.OpenRedisFromEnv()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		defer rc.Close()
	} else {
		l.Info("redis_disabled")
	}

	ds, err := buildDatasetStore(st)
	if err != nil {
		l.Error("dataset_config_error", "err", err)
		os.Exit(1)
	}
	// 后台预加载；加载完成前检索返回空结果，客户端轮询 /status
	go func() {
		if _, err := ds.Load(ctx); err != nil {
			l.Error("dataset_preload_error", "err", err)
		}
	}()
	if utils.EnvBool("DATASET_REFRESH_ENABLE", false) {
		ingest.StartWeekly(ctx, ds, nil,
			time.Weekday(utils.EnvInt("DATASET_REFRESH_WEEKDAY", int(time.Monday))),
			utils.EnvInt("DATASET_REFRESH_HOUR", 3))
	}
	engine := search.NewEngine(ds, search.PolicyFromName(utils.EnvString("CELL_POLICY", "limit")))

	resolver := buildResolver(rc)

	minMove := utils.EnvFloat("MIN_DISTANCE_CHANGE_M", tracker.DefaultMinDistanceChange)
	sessions := tracker.NewManager(func(id string) *tracker.Session {
		return tracker.NewSession(engine,
			tracker.WithContext(ctx),
			tracker.WithEnricher(resolver),
			tracker.WithMinDistance(minMove),
			tracker.WithOnUpdate(func(r search.Result) {
				l.Debug("session_result_enriched", "session_id", id, "matches", len(r.Matches))
			}),
		)
	}, utils.EnvSeconds("SESSION_TTL_S", tracker.DefaultSessionTTL))
	go sessions.Run(ctx)

	locator, err := iplocate.Open(utils.EnvString("GEOIP_DB_PATH", ""))
	if err != nil {
		l.Error("geoip_open_error", "err", err)
		locator = &iplocate.Locator{}
	}
	defer locator.Close()

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(api.Deps{
		Engine:     engine,
		Resolver:   resolver,
		Sessions:   sessions,
		Locator:    locator,
		Stats:      st,
		AdminToken: os.Getenv("ADMIN_TOKEN"),
	})
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	addr := utils.EnvString("ADDR", ":8080")
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	if utils.EnvBool("TLS_ENABLE", false) {
		certPath := utils.EnvString("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt"))
		keyPath := utils.EnvString("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key"))
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "forest-api.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		err = srv.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", addr)
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}

// buildDatasetStore：DATASET_SOURCE=postgres 时读表，否则按 DATASET_PATH 扩展名选择文件源
func buildDatasetStore(st *store.Store) (*dataset.Store, error) {
	if utils.EnvString("DATASET_SOURCE", "file") == "postgres" {
		if st == nil {
			return nil, errors.New("DATASET_SOURCE=postgres requires PG_ENABLE=true")
		}
		return dataset.NewStore(st), nil
	}
	src, err := dataset.SourceFromPath(utils.EnvString("DATASET_PATH", filepath.Join("data", "forests.json")))
	if err != nil {
		return nil, err
	}
	return dataset.NewStore(src), nil
}

// buildResolver：内存缓存在前，Redis 在后；编码表缺失时地址只含町丁目名
func buildResolver(rc *redis.Client) *address.Resolver {
	l := logger.L()
	table, err := address.LoadMunicipalityTable(utils.EnvString("MUNICIPALITY_MAP_PATH", filepath.Join("data", "municipality-map.json")))
	if err != nil {
		l.Error("municipality_map_error", "err", err)
		table = address.NewMunicipalityTable(nil)
	} else {
		l.Info("municipality_map_loaded", "count", table.Len())
	}
	gsi := address.NewGSIClient(
		utils.EnvString("GSI_ENDPOINT", address.DefaultGSIEndpoint),
		address.WithRateLimit(utils.EnvFloat("GSI_RPS", 10)),
		address.WithHTTPClient(&http.Client{Timeout: utils.EnvMillis("GSI_TIMEOUT_MS", 5*time.Second)}),
	)
	var cache address.Cache = address.NewMemCache()
	if rc != nil {
		cache = address.NewChainCache(cache, address.NewRedisCache(rc, utils.EnvSeconds("ADDRESS_CACHE_TTL_S", 0)))
	}
	return address.NewResolver(gsi, table, cache, utils.EnvInt("ADDRESS_BATCH_SIZE", address.DefaultBatchSize))
}
