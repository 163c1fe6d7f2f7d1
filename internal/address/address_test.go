package address

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"forest-api/internal/geo"
	"forest-api/internal/search"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	mu       sync.Mutex
	calls    map[string]int
	total    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	fail     func(lat, lon float64) bool
}

func newFakeGeocoder() *fakeGeocoder { return &fakeGeocoder{calls: map[string]int{}} }

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.total.Add(1)
	f.mu.Lock()
	f.calls[geo.Coordinate{Lat: lat, Lon: lon}.CacheKey()]++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil && f.fail(lat, lon) {
		return "", "", fmt.Errorf("%w: simulated", ErrLookupFailed)
	}
	return "13101", fmt.Sprintf("町%.4f", lat), nil
}

func testTable() *MunicipalityTable {
	return NewMunicipalityTable(map[string]string{"13101": "東京都千代田区", "13201": "東京都八王子市"})
}

func TestResolver_ResolveBuildsFullAddress(t *testing.T) {
	g := newFakeGeocoder()
	r := NewResolver(g, testTable(), nil, 0)
	got := r.Resolve(context.Background(), geo.Coordinate{Lat: 35.6812, Lon: 139.7671})
	assert.Equal(t, "東京都千代田区町35.6812", got)
	assert.Equal(t, DefaultBatchSize, r.BatchSize())
}

func TestResolver_CacheHitSkipsGeocoder(t *testing.T) {
	g := newFakeGeocoder()
	r := NewResolver(g, testTable(), NewMemCache(), 10)
	ctx := context.Background()
	a := r.Resolve(ctx, geo.Coordinate{Lat: 35.68121, Lon: 139.76712})
	b := r.Resolve(ctx, geo.Coordinate{Lat: 35.68124, Lon: 139.76714})
	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), g.total.Load())
}

func TestResolver_FailureCachedAsEmpty(t *testing.T) {
	g := newFakeGeocoder()
	g.fail = func(lat, lon float64) bool { return true }
	cache := NewMemCache()
	r := NewResolver(g, testTable(), cache, 10)
	ctx := context.Background()
	c := geo.Coordinate{Lat: 35.0, Lon: 139.0}

	assert.Equal(t, "", r.Resolve(ctx, c))
	v, ok := cache.Get(ctx, c.CacheKey())
	assert.True(t, ok)
	assert.Equal(t, "", v)

	assert.Equal(t, "", r.Resolve(ctx, c))
	assert.Equal(t, int32(1), g.total.Load())
}

func TestResolver_UnknownMunicipalityCode(t *testing.T) {
	g := newFakeGeocoder()
	r := NewResolver(g, NewMunicipalityTable(nil), nil, 0)
	assert.Equal(t, "町35.0000", r.Resolve(context.Background(), geo.Coordinate{Lat: 35, Lon: 139}))
}

func TestResolver_NilGeocoder(t *testing.T) {
	r := NewResolver(nil, testTable(), nil, 0)
	assert.Equal(t, "", r.Resolve(context.Background(), geo.Coordinate{Lat: 35, Lon: 139}))
}

func TestResolver_ResolveMatchesBoundedBatches(t *testing.T) {
	g := newFakeGeocoder()
	g.delay = 10 * time.Millisecond
	g.fail = func(lat, lon float64) bool { return lat > 35.0205 && lat < 35.0295 }
	r := NewResolver(g, testTable(), nil, 10)

	var ms []search.Match
	for i := 0; i < 35; i++ {
		ms = append(ms, search.Match{ID: fmt.Sprintf("m%02d", i), Coord: geo.Coordinate{Lat: 35 + float64(i)*0.001, Lon: 139}})
	}
	ms = append(ms, search.Match{ID: "has", Address: "既存住所", Coord: geo.Coordinate{Lat: 36, Lon: 140}})

	out := r.ResolveMatches(context.Background(), ms)
	assert.LessOrEqual(t, g.peak.Load(), int32(10))
	assert.Equal(t, int32(35), g.total.Load())
	assert.NotContains(t, out, "has")
	assert.Equal(t, "東京都千代田区町35.0000", out["m00"])
	// 35.021..35.029 失败，不出现在结果中
	for i := 21; i <= 29; i++ {
		assert.NotContains(t, out, fmt.Sprintf("m%02d", i))
	}
	assert.Len(t, out, 35-9)

	// 第二次全部命中缓存
	_ = r.ResolveMatches(context.Background(), ms)
	assert.Equal(t, int32(35), g.total.Load())
}

func TestResolver_BatchWidthOne(t *testing.T) {
	g := newFakeGeocoder()
	g.delay = 2 * time.Millisecond
	r := NewResolver(g, testTable(), nil, 1)
	var ms []search.Match
	for i := 0; i < 5; i++ {
		ms = append(ms, search.Match{ID: fmt.Sprint(i), Coord: geo.Coordinate{Lat: 35 + float64(i)*0.01, Lon: 139}})
	}
	out := r.ResolveMatches(context.Background(), ms)
	assert.Len(t, out, 5)
	assert.Equal(t, int32(1), g.peak.Load())
}

func TestResolver_Enrich(t *testing.T) {
	g := newFakeGeocoder()
	r := NewResolver(g, testTable(), nil, 10)
	res := search.Result{
		Matches: []search.Match{
			{ID: "a", Coord: geo.Coordinate{Lat: 35, Lon: 139}, DistanceMeters: 1},
			{ID: "b", Address: "x", Coord: geo.Coordinate{Lat: 35.1, Lon: 139}, DistanceMeters: 2},
		},
		SearchRadiusMeters: 5000,
	}
	n := res.Matches[0]
	res.Nearest = &n
	out := r.Enrich(context.Background(), res)
	assert.Equal(t, "東京都千代田区町35.0000", out.Matches[0].Address)
	assert.Equal(t, "x", out.Matches[1].Address)
	require.NotNil(t, out.Nearest)
	assert.Equal(t, "a", out.Nearest.ID)
	assert.Equal(t, out.Matches[0].Address, out.Nearest.Address)
	assert.Equal(t, "", res.Matches[0].Address)
}

func TestChainCache_Backfill(t *testing.T) {
	ctx := context.Background()
	l1, l2 := NewMemCache(), NewMemCache()
	l2.Set(ctx, "k", "v")
	c := NewChainCache(l1, nil, l2)

	v, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	v, ok = l1.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	c.Set(ctx, "e", "")
	_, ok = l2.Get(ctx, "e")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
	assert.Equal(t, 2, l1.Len())
}

func TestRedisCache_NilClient(t *testing.T) {
	c := NewRedisCache(nil, 0)
	c.Set(context.Background(), "k", "v")
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedisCache_Live(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis test")
	}
	rc := redis.NewClient(&redis.Options{Addr: addr})
	defer rc.Close()
	ctx := context.Background()
	c := NewRedisCache(rc, time.Minute)
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
	c.Set(ctx, key, "")
	v, ok := c.Get(ctx, key)
	assert.True(t, ok)
	assert.Equal(t, "", v)
	_ = rc.Del(ctx, "addr:"+key).Err()
}

func TestGSIClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "35.6812", r.URL.Query().Get("lat"))
		assert.Equal(t, "139.7671", r.URL.Query().Get("lon"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"muniCd":"13101","lv01Nm":"丸の内一丁目"}}`))
	}))
	defer srv.Close()

	c := NewGSIClient(srv.URL, WithRateLimit(0))
	muni, lv01, err := c.ReverseGeocode(context.Background(), 35.6812, 139.7671)
	require.NoError(t, err)
	assert.Equal(t, "13101", muni)
	assert.Equal(t, "丸の内一丁目", lv01)

	r := NewResolver(c, testTable(), nil, 10)
	assert.Equal(t, "東京都千代田区丸の内一丁目", r.Resolve(context.Background(), geo.Coordinate{Lat: 35.6812, Lon: 139.7671}))
}

func TestGSIClient_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
		"decode": func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`not json`)) },
		"empty":  func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{}`)) },
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, _, err := NewGSIClient(srv.URL, WithRateLimit(100)).ReverseGeocode(context.Background(), 35, 139)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrLookupFailed))
		})
	}
}

func TestGSIClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := NewGSIClient(srv.URL, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, _, err := c.ReverseGeocode(context.Background(), 35, 139)
	assert.ErrorIs(t, err, ErrLookupFailed)
}

func TestMunicipalityTable_BuildAndLoad(t *testing.T) {
	tbl := BuildMunicipalityTable([]LocalGov{
		{LGCode: "131016", Pref: "東京都", City: "千代田 区"},
		{LGCode: "011002", Pref: "北海道", City: "札幌市"},
		{LGCode: "1310", Pref: "東京都", City: "短い"},
		{LGCode: "130001", Pref: "東京都", City: ""},
		{LGCode: "999999", Pref: "", City: ""},
	})
	assert.Equal(t, "東京都千代田区", tbl.Name("13101"))
	assert.Equal(t, "北海道札幌市", tbl.Name("01100"))
	assert.Equal(t, "東京都", tbl.Name("13000"))
	assert.Equal(t, "", tbl.Name("99999"))
	assert.Equal(t, 3, tbl.Len())

	p := filepath.Join(t.TempDir(), "municipality-map.json")
	require.NoError(t, tbl.Save(p))
	loaded, err := LoadMunicipalityTable(p)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, "東京都千代田区", loaded.Name("13101"))

	var nilTbl *MunicipalityTable
	assert.Equal(t, "", nilTbl.Name("13101"))
}

func TestLoadMunicipalityTable_Errors(t *testing.T) {
	_, err := LoadMunicipalityTable(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	p := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(p, []byte(`[1,2]`), 0o644))
	_, err = LoadMunicipalityTable(p)
	assert.Error(t, err)
}
