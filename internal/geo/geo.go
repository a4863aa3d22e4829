package geo

import (
	"math"

	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/models"
)

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between two points in kilometers.
// Inputs are degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Distance is HaversineKm over Coord values.
func Distance(a, b models.Coord) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// ValidateCoord rejects NaN/Inf and out-of-range coordinates.
func ValidateCoord(c models.Coord) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return domainerr.Validation("coordinate is not a finite number")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return domainerr.Validation("latitude %.4f out of range", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return domainerr.Validation("longitude %.4f out of range", c.Lng)
	}
	return nil
}
