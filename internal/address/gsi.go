package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"forest-api/internal/logger"
	"forest-api/internal/metrics"

	"golang.org/x/time/rate"
)

// DefaultGSIEndpoint 国土地理院 反地理编码接口
const DefaultGSIEndpoint = "https://mreversegeocoder.gsi.go.jp/reverse-geocoder/LonLatToAddress"

// ErrLookupFailed 单个坐标的网络或解析失败
var ErrLookupFailed = errors.New("address lookup failed")

// 文档注释：反地理编码协作者契约
// 返回：muniCd（5 位自治体编码）与 lv01Nm（町丁目名）；失败返回包装 ErrLookupFailed 的错误。
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (muniCd string, lv01Nm string, err error)
}

// 文档注释：GSI 响应结构（仅解析需要的字段）
type gsiResponse struct {
	Results *struct {
		MuniCd string `json:"muniCd"`
		Lv01Nm string `json:"lv01Nm"`
	} `json:"results"`
}

// 文档注释：GSI 反地理编码客户端
// 背景：公共接口无密钥，需自觉限速；超时由 http.Client 控制，检索主流程不设超时。
// 约束：非 200、响应缺少 results 或解码失败均视为 ErrLookupFailed。
type GSIClient struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// Option 配置 GSIClient
type Option func(*GSIClient)

func WithHTTPClient(c *http.Client) Option {
	return func(g *GSIClient) { g.client = c }
}

// WithRateLimit：每秒请求数，<=0 表示不限速
func WithRateLimit(rps float64) Option {
	return func(g *GSIClient) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewGSIClient(endpoint string, opts ...Option) *GSIClient {
	if endpoint == "" {
		endpoint = DefaultGSIEndpoint
	}
	g := &GSIClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *GSIClient) ReverseGeocode(ctx context.Context, lat, lon float64) (string, string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	t0 := time.Now()
	metrics.GSIRequestsTotal.Inc()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.GSIFailTotal.Inc()
		logger.L().Debug("gsi_http_error", "lat", lat, "lon", lon, "err", err)
		return "", "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()
	metrics.GSIDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if resp.StatusCode != http.StatusOK {
		metrics.GSIFailTotal.Inc()
		logger.L().Debug("gsi_bad_status", "lat", lat, "lon", lon, "status", resp.StatusCode)
		return "", "", fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}
	var r gsiResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		metrics.GSIFailTotal.Inc()
		logger.L().Debug("gsi_decode_error", "lat", lat, "lon", lon, "err", err)
		return "", "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if r.Results == nil {
		metrics.GSIFailTotal.Inc()
		return "", "", fmt.Errorf("%w: empty results", ErrLookupFailed)
	}
	metrics.GSISuccessTotal.Inc()
	logger.L().Debug("gsi_resp", "lat", lat, "lon", lon, "muni_cd", r.Results.MuniCd, "lv01", r.Results.Lv01Nm, "duration_ms", time.Since(t0).Milliseconds())
	return r.Results.MuniCd, r.Results.Lv01Nm, nil
}
