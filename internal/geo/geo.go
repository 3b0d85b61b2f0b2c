// README: Pure geographic math: great-circle distance, ETA, radius checks.
package geo

import (
	"errors"
	"math"

	"towline/internal/types"
)

// earthRadiusMiles is the mean Earth radius used for haversine distances.
const earthRadiusMiles = 3956.0

// DefaultAvgSpeedMph is the city-driving speed assumed for ETA estimates.
const DefaultAvgSpeedMph = 35.0

var ErrInvalidCoordinate = errors.New("coordinate out of range")

// Validate rejects coordinates outside [-90,90] latitude / [-180,180] longitude.
func Validate(p types.Point) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// DistanceMiles returns the haversine great-circle distance between two
// points in miles. Safe for concurrent use; no state.
func DistanceMiles(a, b types.Point) float64 {
	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}

// ETAMinutes estimates travel time at avgSpeedMph, rounded up to whole
// minutes. Zero distance yields 0; any positive distance yields at least 1.
func ETAMinutes(distanceMiles, avgSpeedMph float64) int {
	if distanceMiles <= 0 {
		return 0
	}
	if avgSpeedMph <= 0 {
		avgSpeedMph = DefaultAvgSpeedMph
	}
	minutes := int(math.Ceil(distanceMiles / avgSpeedMph * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// WithinRadius reports whether p lies within radiusMiles of center.
func WithinRadius(p, center types.Point, radiusMiles float64) bool {
	return DistanceMiles(p, center) <= radiusMiles
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
