// Package pricing holds the fixed per-class fare table and the duration
// estimator used for ride quotes.
package pricing

import (
	"math"
	"strings"

	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/models"
)

type rateCard struct {
	Base  float64
	PerKm float64
}

// Fare table in currency units. Unknown classes fall back to economy.
var rates = map[string]rateCard{
	"economy": {Base: 50, PerKm: 10},
	"premium": {Base: 100, PerKm: 15},
	"suv":     {Base: 120, PerKm: 18},
	"luxury":  {Base: 200, PerKm: 25},
}

// AverageSpeedKmh is the assumed travel speed for duration estimates.
const AverageSpeedKmh = 40.0

// Fare computes base + rate x distance for the given class.
func Fare(distanceKm float64, class models.VehicleClass) (float64, error) {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return 0, domainerr.Validation("invalid distance %f", distanceKm)
	}
	rc, ok := rates[strings.ToLower(string(class))]
	if !ok {
		rc = rates["economy"]
	}
	return rc.Base + rc.PerKm*distanceKm, nil
}

// DurationMinutes estimates travel time at the given average speed, falling
// back to AverageSpeedKmh when speed is not positive.
func DurationMinutes(distanceKm, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = AverageSpeedKmh
	}
	return int(distanceKm / speedKmh * 60)
}
