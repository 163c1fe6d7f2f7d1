package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"forest-api/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls atomic.Int32
	recs  []Record
	err   error
	delay time.Duration
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) Read(ctx context.Context) ([]Record, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.recs, c.err
}

func TestStore_LoadIsIdempotent(t *testing.T) {
	src := &countingSource{recs: []Record{{ID: "a", Coord: geo.Coordinate{Lat: 35, Lon: 139}}}}
	s := NewStore(src)
	assert.False(t, s.IsLoaded())
	assert.Equal(t, 0, s.Count())

	recs, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, s.IsLoaded())
	assert.Equal(t, 1, s.Count())
}

func TestStore_ConcurrentLoadCoalesced(t *testing.T) {
	src := &countingSource{
		recs:  []Record{{ID: "a", Coord: geo.Coordinate{Lat: 35, Lon: 139}}},
		delay: 50 * time.Millisecond,
	}
	s := NewStore(src)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := s.Load(context.Background())
			assert.NoError(t, err)
			assert.Len(t, recs, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestStore_LoadFailureLeavesUninitialized(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	s := NewStore(src)
	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.False(t, s.IsLoaded())
	assert.Nil(t, s.Records())

	_, err = s.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestStore_NilSource(t *testing.T) {
	_, err := NewStore(nil).Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestStore_SkipsMalformedAndDuplicates(t *testing.T) {
	s := NewStaticStore([]Record{
		{ID: "a", Coord: geo.Coordinate{Lat: 35, Lon: 139}},
		{ID: "", Coord: geo.Coordinate{Lat: 35, Lon: 139}},
		{ID: "b", Coord: geo.Coordinate{Lat: 95, Lon: 139}},
		{ID: "a", Name: "dup", Coord: geo.Coordinate{Lat: 36, Lon: 140}},
		{ID: "c", Coord: geo.Coordinate{Lat: -10, Lon: -70}},
	})
	recs := s.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "", recs[0].Name)
	assert.Equal(t, "c", recs[1].ID)
}

func TestStore_ReloadKeepsOldOnFailure(t *testing.T) {
	src := &countingSource{recs: []Record{{ID: "a", Coord: geo.Coordinate{Lat: 35, Lon: 139}}}}
	s := NewStore(src)
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	src.recs = append(src.recs, Record{ID: "b", Coord: geo.Coordinate{Lat: 36, Lon: 140}})
	n, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Count())

	src.err = errors.New("gone")
	_, err = s.Reload(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.Equal(t, 2, s.Count())
}

func TestJSONFileSource(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "forests.json")
	body := `[
		{"id":"f1","name":"高尾山","latitude":35.625,"longitude":139.243,"address":""},
		{"id":"f2","name":"","latitude":35.7,"address":"東京都"},
		{"id":"f3","name":" ","latitude":35.8,"longitude":139.1,"address":"東京都青梅市"}
	]`
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))

	s := NewStore(JSONFileSource{Path: p})
	recs, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "f1", recs[0].ID)
	assert.Equal(t, "高尾山", recs[0].Name)
	assert.Equal(t, "", recs[1].Name)
	assert.Equal(t, "東京都青梅市", recs[1].Address)
}

func TestJSONFileSource_MissingAndMalformed(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStore(JSONFileSource{Path: filepath.Join(dir, "nope.json")}).Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"id":1`), 0o644))
	_, err = NewStore(JSONFileSource{Path: bad}).Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)

	mixed := filepath.Join(dir, "mixed.json")
	require.NoError(t, os.WriteFile(mixed, []byte(`[
		{"id":"a","latitude":35,"longitude":139},
		{"id":"b","latitude":"abc","longitude":139},
		{"id":"b2","latitude":"35.0","longitude":139},
		"not an object",
		{"id":"n","name":"no coords"},
		{"id":"c","latitude":35.01,"longitude":139.01}
	]`), 0o644))
	s := NewStore(JSONFileSource{Path: mixed})
	recs, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, s.IsLoaded())
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "c", recs[1].ID)
}

func TestCSVSource_Parse(t *testing.T) {
	csvText := strings.Join([]string{
		"id,code,name,lat,lon,a,b,c,d,address",
		"t1,x,御岳山,35.78,139.15,,,,,東京都青梅市御岳山",
		"t2,x,,notanumber,139.15,,,,,",
		"t3,x,奥多摩,35.80,139.10",
		"t4,x",
	}, "\n")
	recs, err := NewCSVSource("mem").parse(context.Background(), strings.NewReader(csvText))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "t1", recs[0].ID)
	assert.Equal(t, "御岳山", recs[0].Name)
	assert.Equal(t, "東京都青梅市御岳山", recs[0].Address)
	assert.InDelta(t, 35.78, recs[0].Coord.Lat, 1e-9)
	assert.Equal(t, "t3", recs[1].ID)
	assert.Equal(t, "", recs[1].Address)
}

func TestCSVSource_Empty(t *testing.T) {
	_, err := NewCSVSource("mem").parse(context.Background(), strings.NewReader(""))
	assert.Error(t, err)
}

func TestGeoJSONSource(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "kokudo.geojson")
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"id":"p1","name":"点"},"geometry":{"type":"Point","coordinates":[139.5,35.5]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[139.0,35.0],[139.2,35.0],[139.2,35.2],[139.0,35.2]]]}},
		{"type":"Feature","properties":{"name":"多"},"geometry":{"type":"MultiPolygon","coordinates":[[[[140.0,36.0],[140.1,36.0],[140.1,36.1]]]]}},
		{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[139.0,35.0],[139.1,35.1]]}}
	]}`
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))

	src, err := SourceFromPath(p)
	require.NoError(t, err)
	recs, err := src.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "p1", recs[0].ID)
	assert.Equal(t, geo.Coordinate{Lat: 35.5, Lon: 139.5}, recs[0].Coord)

	assert.Equal(t, "kokudo-2", recs[1].ID)
	assert.InDelta(t, 35.1, recs[1].Coord.Lat, 1e-9)
	assert.InDelta(t, 139.1, recs[1].Coord.Lon, 1e-9)

	assert.Equal(t, "kokudo-3", recs[2].ID)
	assert.Equal(t, "多", recs[2].Name)
	assert.InDelta(t, 36.033333, recs[2].Coord.Lat, 1e-9)
}

func TestSourceFromPath_Unknown(t *testing.T) {
	_, err := SourceFromPath("forests.xml")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "forests.json")
	in := []Record{
		{ID: "a", Name: "森", Address: "東京都", Coord: geo.Coordinate{Lat: 35.1, Lon: 139.2}},
		{ID: "b", Coord: geo.Coordinate{Lat: 35.3, Lon: 139.4}},
	}
	require.NoError(t, WriteJSON(p, in))
	out, err := JSONFileSource{Path: p}.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

// ctxSource 在 ctx 已取消时读取失败
type ctxSource struct {
	countingSource
}

func (c *ctxSource) Read(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.countingSource.Read(ctx)
}

func TestStore_ReadIgnoresCallerCancel(t *testing.T) {
	src := &ctxSource{countingSource{recs: []Record{{ID: "a", Coord: geo.Coordinate{Lat: 35, Lon: 139}}}}}
	s := NewStore(src)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	n, err := s.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ReloadDuringLoadReadsAgain(t *testing.T) {
	src := &countingSource{
		recs:  []Record{{ID: "a", Coord: geo.Coordinate{Lat: 35, Lon: 139}}},
		delay: 100 * time.Millisecond,
	}
	s := NewStore(src)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Load(context.Background())
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond)
	n, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	<-done
	assert.Equal(t, int32(2), src.calls.Load())
	assert.True(t, s.IsLoaded())
}
