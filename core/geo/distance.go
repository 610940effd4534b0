// Package geo holds coordinate types and great-circle distance helpers shared
// by the dialog engine, walking sessions and place recommendations.
package geo

import (
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Fix is a single position reading reported by a geolocation provider.
type Fix struct {
	Coordinate
	// AccuracyMeters is the provider reported accuracy radius. Zero means
	// unknown.
	AccuracyMeters float64
	Timestamp      time.Time
}

// DistanceKm returns the haversine distance between a and b in kilometres.
//
// The intermediate term is clamped to [0, 1] so rounding around antipodal
// points and the poles never produces NaN.
func DistanceKm(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	deltaLat := toRadians(b.Lat - a.Lat)
	deltaLng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(deltaLat / 2)
	sinLng := math.Sin(deltaLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceMeters is DistanceKm expressed in metres.
func DistanceMeters(a, b Coordinate) float64 {
	return DistanceKm(a, b) * 1000
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
