package geospatial

import "math"

const earthRadiusMeters = 6371000.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
// Longitudes are clamped to the valid range near the poles.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	cos := math.Cos(toRad(lat))
	lonDelta := 180.0
	if cos > 1e-9 {
		lonDelta = math.Min(180, radiusMeters/(111320.0*cos))
	}

	return math.Max(-90, lat-latDelta), math.Max(-180, lon-lonDelta),
		math.Min(90, lat+latDelta), math.Min(180, lon+lonDelta)
}

// WithinRadius reports whether (lat2, lon2) lies within radiusMeters of (lat1, lon1).
func WithinRadius(lat1, lon1, lat2, lon2, radiusMeters float64) bool {
	minLat, minLon, maxLat, maxLon := BoundingBox(lat1, lon1, radiusMeters)
	if lat2 < minLat || lat2 > maxLat || lon2 < minLon || lon2 > maxLon {
		return false
	}
	return Haversine(lat1, lon1, lat2, lon2) <= radiusMeters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
