package geo

import (
	"math"
	"testing"

	"github.com/example/voyago/internal/models"
)

func TestHaversineZero(t *testing.T) {
	if d := HaversineKm(12.9716, 77.5946, 12.9716, 77.5946); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	ab := HaversineKm(12.9716, 77.5946, 12.9352, 77.6245)
	ba := HaversineKm(12.9352, 77.6245, 12.9716, 77.5946)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("asymmetric: %f vs %f", ab, ba)
	}
}

func TestHaversineKnownPair(t *testing.T) {
	// MG Road to Koramangala, roughly 4.5 km
	d := HaversineKm(12.9716, 77.5946, 12.9352, 77.6245)
	if d < 4.3 || d > 4.7 {
		t.Fatalf("expected ~4.48 km, got %f", d)
	}
}

func TestValidateCoord(t *testing.T) {
	if err := ValidateCoord(models.Coord{Lat: 12.9, Lng: 77.6}); err != nil {
		t.Fatalf("valid coord rejected: %v", err)
	}
	bad := []models.Coord{
		{Lat: 91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: math.NaN(), Lng: 0},
		{Lat: 0, Lng: math.Inf(1)},
	}
	for _, c := range bad {
		if err := ValidateCoord(c); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}
