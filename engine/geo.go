package engine

import "math"

// EarthRadiusKm is the mean earth radius used for every great-circle
// computation in the engine, including the Mongo $centerSphere radius
// conversion. Keeping a single constant prevents the same radius
// parameter from meaning different distances on different endpoints.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// WGS-84 points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// ValidCoordinates reports whether a latitude/longitude pair is a real
// number within WGS-84 range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ValidateLocation returns an InvalidLocationError when the pair is out
// of range, and nil otherwise.
func ValidateLocation(lat, lon float64) error {
	if !ValidCoordinates(lat, lon) {
		return &InvalidLocationError{
			Message: "longitude must be between -180 and 180, latitude between -90 and 90",
		}
	}
	return nil
}

// ValidateRadius rejects non-positive or non-finite radii for geo
// filtered queries.
func ValidateRadius(radiusKm float64) error {
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) || radiusKm <= 0 {
		return &InvalidLocationError{Message: "radius must be a positive number of kilometers"}
	}
	return nil
}
