// Package geo computes great-circle distances between coordinate pairs
// and classifies positions against a room's radius.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceKm returns the great-circle distance in kilometers between two
// points given in decimal degrees, using the haversine formula.
// Coordinates are taken as-is; out-of-range values are not rejected.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// IsWithinRadius reports whether the candidate position lies within
// radiusKm of the origin. The boundary is inclusive: a point at exactly
// radiusKm counts as inside.
func IsWithinRadius(originLat, originLon, radiusKm, lat, lon float64) bool {
	return DistanceKm(originLat, originLon, lat, lon) <= radiusKm
}
