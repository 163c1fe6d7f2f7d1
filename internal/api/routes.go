// 包 api：集中注册 HTTP 路由，由主入口挂载到 API_BASE 前缀下
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"forest-api/internal/address"
	"forest-api/internal/geo"
	"forest-api/internal/iplocate"
	"forest-api/internal/logger"
	"forest-api/internal/metrics"
	"forest-api/internal/search"
	"forest-api/internal/store"
	"forest-api/internal/tracker"
)

// 文档注释：路由依赖
// 约束：Engine 与 Sessions 必填；Resolver / Locator / Stats 为空时对应功能降级。
type Deps struct {
	Engine     *search.Engine
	Resolver   *address.Resolver
	Sessions   *tracker.Manager
	Locator    *iplocate.Locator
	Stats      *store.Store
	AdminToken string
}

type server struct {
	Deps
}

// BuildRoutes：返回独立 ServeMux，路径不含前缀
func BuildRoutes(d Deps) *http.ServeMux {
	s := &server{Deps: d}
	mux := http.NewServeMux()
	mux.Handle("/search", instrument("search", s.handleSearch))
	mux.Handle("/session/position", instrument("session_position", s.handlePosition))
	mux.Handle("/session/refresh", instrument("session_refresh", s.handleRefresh))
	mux.Handle("/session/result", instrument("session_result", s.handleSessionResult))
	mux.Handle("/address", instrument("address", s.handleAddress))
	mux.Handle("/status", instrument("status", s.handleStatus))
	mux.Handle("/stats", instrument("stats", s.handleStats))
	mux.Handle("/reload", instrument("reload", s.handleReload))
	return mux
}

func instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(t0).Milliseconds()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

var errMissingCoord = errors.New("missing coordinate")

// parseCoord：lat/lon 同时缺失返回 errMissingCoord；只给一个或非法时返回其他错误
func parseCoord(r *http.Request) (geo.Coordinate, error) {
	q := r.URL.Query()
	ls, lons := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lon"))
	if ls == "" && lons == "" {
		return geo.Coordinate{}, errMissingCoord
	}
	lat, err := strconv.ParseFloat(ls, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("bad lat %q", ls)
	}
	lon, err := strconv.ParseFloat(lons, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("bad lon %q", lons)
	}
	c := geo.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return geo.Coordinate{}, errors.New("coordinate out of range")
	}
	return c, nil
}

func parseRadiusLimit(r *http.Request) (float64, int, error) {
	q := r.URL.Query()
	var radius float64
	var limit int
	if s := q.Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("bad radius %q", s)
		}
		radius = v
	}
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("bad limit %q", s)
		}
		limit = v
	}
	return radius, limit, nil
}

func (s *server) loaded() bool { return s.Engine.Loaded() }

func (s *server) recordStats(ctx context.Context, newSession bool) {
	if s.Stats == nil {
		return
	}
	s.Stats.IncrStats(ctx, newSession)
}

// 文档注释：无状态检索
// 背景：未提供坐标时按客户端 IP 估算位置；resolve=1 时同步补全地址后返回。
func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	origin, err := parseCoord(r)
	approximate := false
	if errors.Is(err, errMissingCoord) {
		ip := getClientIP(r)
		c, _, lerr := s.Locator.Locate(ip)
		if lerr != nil {
			logger.L().Debug("search_geoip_fallback_failed", "ip", ip, "err", lerr)
			writeError(w, http.StatusBadRequest, "lat and lon are required")
			return
		}
		origin, err, approximate = c, nil, true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	radius, limit, err := parseRadiusLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.Engine.Search(origin.Lat, origin.Lon, radius, limit)
	if s.Resolver != nil && r.URL.Query().Get("resolve") == "1" {
		res = s.Resolver.Enrich(r.Context(), res)
	}
	s.recordStats(r.Context(), false)
	if r.URL.Query().Get("format") == "geojson" {
		writeGeoJSON(w, res)
		return
	}
	out := toResultDTO(res, s.loaded())
	out.Origin = &origin
	out.Approximate = approximate
	writeJSON(w, http.StatusOK, out)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad body: %w", err)
	}
	return nil
}

// 文档注释：会话位置上报
// 返回：{searched, result}；移动不足阈值时 searched=false，result 为上次结果（可能已补全地址）。
func (s *server) handlePosition(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req positionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	pos := geo.Coordinate{Lat: *req.Lat, Lon: *req.Lon}
	if !pos.Valid() || req.Radius < 0 || req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid position or search parameters")
		return
	}
	_, existed := s.Sessions.Get(req.SessionID)
	sess := s.Sessions.GetOrCreate(req.SessionID)
	sess.SetParams(req.Radius, req.Limit)
	res, searched := sess.Update(pos)
	if searched {
		s.recordStats(r.Context(), !existed)
	}
	writeJSON(w, http.StatusOK, positionResponse{Searched: searched, Result: toResultDTO(res, s.loaded())})
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req sessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, ok := s.Sessions.Get(req.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	res, searched := sess.Refresh()
	if searched {
		s.recordStats(r.Context(), false)
	}
	writeJSON(w, http.StatusOK, positionResponse{Searched: searched, Result: toResultDTO(res, s.loaded())})
}

func (s *server) handleSessionResult(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.Sessions.Get(r.URL.Query().Get("session_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(sess.Result(), s.loaded()))
}

func (s *server) handleAddress(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	c, err := parseCoord(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := addressResponse{Latitude: c.Lat, Longitude: c.Lon}
	if s.Resolver != nil {
		out.Address = s.Resolver.Resolve(r.Context(), c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Engine.Store()
	out := statusResponse{}
	if st != nil {
		out.Loaded = st.IsLoaded()
		out.Count = st.Count()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "stats disabled")
		return
	}
	t, err := s.Stats.GetTotals(r.Context())
	if err != nil {
		logger.L().Error("stats_read_error", "err", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// 文档注释：管理接口，重新读取数据集
// 约束：ADMIN_TOKEN 未配置时一律拒绝；读取失败保留旧数据。
func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	tok := r.Header.Get("x-admin-token")
	if s.AdminToken == "" || subtle.ConstantTimeCompare([]byte(tok), []byte(s.AdminToken)) != 1 {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	st := s.Engine.Store()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "no dataset store")
		return
	}
	n, err := st.Reload(r.Context())
	if err != nil {
		logger.L().Error("reload_error", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.L().Info("reload_done", "count", n)
	writeJSON(w, http.StatusOK, statusResponse{Loaded: true, Count: n})
}
