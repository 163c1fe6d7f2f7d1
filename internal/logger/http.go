package logger

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// recorder 捕获响应状态与字节数
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *recorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// 文档注释：访问日志中间件
// 约束：不读取请求体；查询串中的 lat/lon 截断到两位小数后再记录；/metrics 抓取不记录。
// 5xx 以 warn 级别输出，其余为 debug。
func AccessMiddleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}
			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			t0 := time.Now()
			next.ServeHTTP(rec, r)
			lvl := slog.LevelDebug
			if rec.status >= http.StatusInternalServerError {
				lvl = slog.LevelWarn
			}
			l.Log(r.Context(), lvl, "http_access",
				"method", r.Method,
				"path", r.URL.Path,
				"query", CoarseQuery(r.URL.RawQuery),
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(t0).Milliseconds(),
				"remote", r.RemoteAddr,
			)
		})
	}
}

// CoarseQuery 将 lat/lon 参数截断到两位小数（约 1km），其余参数原样保留
func CoarseQuery(raw string) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for _, k := range []string{"lat", "lon"} {
		v := q.Get(k)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		q.Set(k, strconv.FormatFloat(f, 'f', 2, 64))
	}
	return q.Encode()
}
