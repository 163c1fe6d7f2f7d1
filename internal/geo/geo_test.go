package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters_Symmetric(t *testing.T) {
	pairs := [][2]Coordinate{
		{{35.0, 139.0}, {35.01, 139.01}},
		{{35.681236, 139.767125}, {34.702485, 135.495951}},
		{{-33.8688, 151.2093}, {51.5074, -0.1278}},
		{{0, 179.9}, {0, -179.9}},
		{{89.9, 0}, {-89.9, 0}},
	}
	for _, p := range pairs {
		ab := DistanceMeters(p[0], p[1])
		ba := DistanceMeters(p[1], p[0])
		assert.InDelta(t, ab, ba, 1e-6, "pair %v", p)
		assert.Greater(t, ab, 0.0)
	}
}

func TestDistanceMeters_ZeroForSamePoint(t *testing.T) {
	for _, c := range []Coordinate{{0, 0}, {35.0, 139.0}, {-45.5, -170.25}, {90, 180}} {
		assert.InDelta(t, 0.0, DistanceMeters(c, c), 1e-9)
	}
}

func TestDistanceMeters_KnownValues(t *testing.T) {
	// 东京站 → 新大阪站 约 403km
	d := DistanceMeters(Coordinate{35.681236, 139.767125}, Coordinate{34.733165, 135.500214})
	assert.InDelta(t, 403000, d, 5000)

	// 赤道上 1 度经度
	one := DistanceMeters(Coordinate{0, 0}, Coordinate{0, 1})
	assert.InDelta(t, EarthRadiusMeters*math.Pi/180, one, 1e-6)
}

func TestDistanceMeters_TriangleInequality(t *testing.T) {
	a := Coordinate{35.0, 139.0}
	b := Coordinate{35.5, 139.4}
	c := Coordinate{36.0, 140.0}
	assert.LessOrEqual(t, DistanceMeters(a, c), DistanceMeters(a, b)+DistanceMeters(b, c)+1e-6)
}

func TestCoordinate_Valid(t *testing.T) {
	assert.True(t, Coordinate{35, 139}.Valid())
	assert.True(t, Coordinate{-90, -180}.Valid())
	assert.False(t, Coordinate{91, 0}.Valid())
	assert.False(t, Coordinate{0, 180.5}.Valid())
	assert.False(t, Coordinate{math.NaN(), 0}.Valid())
	assert.False(t, Coordinate{0, math.Inf(1)}.Valid())
}

func TestCoordinate_CacheKey(t *testing.T) {
	assert.Equal(t, "35.0000,139.0000", Coordinate{35, 139}.CacheKey())
	assert.Equal(t, "35.6812,139.7671", Coordinate{35.681236, 139.767125}.CacheKey())
	assert.Equal(t, Coordinate{35.68121, 139.76712}.CacheKey(), Coordinate{35.68124, 139.76714}.CacheKey())
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "0m", FormatDistance(0))
	assert.Equal(t, "850m", FormatDistance(849.6))
	assert.Equal(t, "1.0km", FormatDistance(1000))
	assert.Equal(t, "12.3km", FormatDistance(12345))
}

func TestFormatWalkingTime(t *testing.T) {
	assert.Equal(t, "徒歩1分", FormatWalkingTime(1))
	assert.Equal(t, "徒歩2分", FormatWalkingTime(81))
	assert.Equal(t, "徒歩1時間", FormatWalkingTime(4800))
	assert.Equal(t, "徒歩1時間1分", FormatWalkingTime(4801))
	assert.Equal(t, "徒歩1時間1分", FormatByMode(4801, ModeWalking))
	assert.Equal(t, "4.8km", FormatByMode(4801, ModeDistance))
}
