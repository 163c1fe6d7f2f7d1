package api

import (
	"forest-api/internal/geo"
	"forest-api/internal/search"
)

// 文档注释：命中条目（对外）
// 约束：字段稳定；distance_text / walking_text 为展示文本，客户端按显示模式择一使用。
type matchDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DistanceMeters float64 `json:"distance_meters"`
	DistanceText   string  `json:"distance_text"`
	WalkingText    string  `json:"walking_text"`
}

// resultDTO：检索结果（对外）；Origin 为实际检索位置，IP 估算时 Approximate 为真
type resultDTO struct {
	Matches            []matchDTO      `json:"matches"`
	Nearest            *matchDTO       `json:"nearest"`
	SearchRadiusMeters float64         `json:"search_radius_meters"`
	Loaded             bool            `json:"loaded"`
	Origin             *geo.Coordinate `json:"origin,omitempty"`
	Approximate        bool            `json:"approximate,omitempty"`
}

type positionRequest struct {
	SessionID string   `json:"session_id"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Radius    float64  `json:"radius"`
	Limit     int      `json:"limit"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type positionResponse struct {
	Searched bool      `json:"searched"`
	Result   resultDTO `json:"result"`
}

type addressResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

type statusResponse struct {
	Loaded bool `json:"loaded"`
	Count  int  `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toMatchDTO(m search.Match) matchDTO {
	return matchDTO{
		ID:             m.ID,
		Name:           m.Name,
		Address:        m.Address,
		Latitude:       m.Coord.Lat,
		Longitude:      m.Coord.Lon,
		DistanceMeters: m.DistanceMeters,
		DistanceText:   geo.FormatDistance(m.DistanceMeters),
		WalkingText:    geo.FormatWalkingTime(m.DistanceMeters),
	}
}

func toResultDTO(r search.Result, loaded bool) resultDTO {
	out := resultDTO{
		Matches:            make([]matchDTO, 0, len(r.Matches)),
		SearchRadiusMeters: r.SearchRadiusMeters,
		Loaded:             loaded,
	}
	for _, m := range r.Matches {
		out.Matches = append(out.Matches, toMatchDTO(m))
	}
	if r.Nearest != nil {
		n := toMatchDTO(*r.Nearest)
		out.Nearest = &n
	}
	return out
}
