package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineZeroDistance(t *testing.T) {
	d := Haversine(12.9716, 77.5946, 12.9716, 77.5946)
	assert.InDelta(t, 0, d, 1e-9)
}

func TestHaversineKnownDistances(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm                 float64
		tolKm                  float64
	}{
		{"bangalore to mysore", 12.9716, 77.5946, 12.2958, 76.6394, 127, 5},
		{"london to paris", 51.5074, -0.1278, 48.8566, 2.3522, 344, 5},
		{"equator quarter", 0, 0, 0, 90, math.Pi / 2 * EarthRadiusKm, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.wantKm, got, tt.tolKm)
		})
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := Haversine(12.97, 77.59, 13.08, 80.27)
	b := Haversine(13.08, 80.27, 12.97, 77.59)
	assert.InDelta(t, a, b, 1e-9)
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(45.0, -122.5))
	assert.True(t, ValidCoordinates(-90, 180))
	assert.True(t, ValidCoordinates(90, -180))
	assert.True(t, ValidCoordinates(0, 0))

	assert.False(t, ValidCoordinates(91, 0))
	assert.False(t, ValidCoordinates(-91, 0))
	assert.False(t, ValidCoordinates(0, 181))
	assert.False(t, ValidCoordinates(0, -181))
	assert.False(t, ValidCoordinates(math.NaN(), 0))
	assert.False(t, ValidCoordinates(0, math.Inf(1)))
}

func TestValidateLocation(t *testing.T) {
	require.NoError(t, ValidateLocation(45.0, -122.5))

	err := ValidateLocation(91, 0)
	require.Error(t, err)
	var locErr *InvalidLocationError
	require.ErrorAs(t, err, &locErr)

	// The location specialization also matches the general validation
	// error, so both land on the same HTTP status.
	var validErr *ValidationError
	require.ErrorAs(t, err, &validErr)
	assert.Equal(t, "location", validErr.Field)
}

func TestValidateRadius(t *testing.T) {
	require.NoError(t, ValidateRadius(0.01))
	require.NoError(t, ValidateRadius(5000))

	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		var locErr *InvalidLocationError
		require.ErrorAs(t, ValidateRadius(r), &locErr, "radius %v", r)
	}
}
