package api

import (
	"net/http"

	"forest-api/internal/geo"
	"forest-api/internal/logger"
	"forest-api/internal/search"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 文档注释：结果转 GeoJSON FeatureCollection
// 约束：点坐标为 [lon, lat]；最近点带 nearest=true 属性，要素顺序与距离升序一致。
func toFeatureCollection(res search.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, m := range res.Matches {
		f := geojson.NewFeature(orb.Point{m.Coord.Lon, m.Coord.Lat})
		f.ID = m.ID
		f.Properties["id"] = m.ID
		f.Properties["name"] = m.Name
		f.Properties["address"] = m.Address
		f.Properties["distance_meters"] = m.DistanceMeters
		f.Properties["distance_text"] = geo.FormatDistance(m.DistanceMeters)
		f.Properties["walking_text"] = geo.FormatWalkingTime(m.DistanceMeters)
		f.Properties["nearest"] = i == 0
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{"search_radius_meters": res.SearchRadiusMeters}
	return fc
}

func writeGeoJSON(w http.ResponseWriter, res search.Result) {
	b, err := toFeatureCollection(res).MarshalJSON()
	if err != nil {
		logger.L().Error("geojson_marshal_error", "err", err)
		writeError(w, http.StatusInternalServerError, "encode error")
		return
	}
	w.Header().Set("content-type", "application/geo+json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(b)
}
