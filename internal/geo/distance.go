package geo

import (
	"math"
	"time"
)

const (
	earthRadiusKm = 6371.0

	// MaxPlausibleDistanceKm bounds a single ride. Anything above this is a
	// coordinate error, not a trip.
	MaxPlausibleDistanceKm = 1000.0

	// averageSpeedKmh feeds the ETA estimate for city traffic.
	averageSpeedKmh = 30.0
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HaversineKm returns the great-circle distance between two points in
// kilometres, rounded to two decimal places.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return round2(earthRadiusKm * c)
}

// EstimateETA converts a distance into a travel-time estimate assuming
// averageSpeedKmh, with a one minute floor.
func EstimateETA(distanceKm float64) time.Duration {
	if distanceKm <= 0 {
		return time.Minute
	}
	eta := time.Duration(distanceKm / averageSpeedKmh * float64(time.Hour))
	if eta < time.Minute {
		return time.Minute
	}
	return eta.Round(time.Second)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
