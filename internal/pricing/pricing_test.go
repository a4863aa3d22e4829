package pricing

import (
	"math"
	"testing"

	"github.com/example/voyago/internal/models"
)

func TestFareAtZeroDistanceIsBase(t *testing.T) {
	cases := map[models.VehicleClass]float64{
		models.ClassEconomy: 50,
		models.ClassPremium: 100,
		models.ClassSUV:     120,
		models.ClassLuxury:  200,
	}
	for class, base := range cases {
		f, err := Fare(0, class)
		if err != nil {
			t.Fatalf("%s: %v", class, err)
		}
		if f != base {
			t.Fatalf("%s: expected %f at zero distance, got %f", class, base, f)
		}
	}
}

func TestFareNonDecreasing(t *testing.T) {
	prev := 0.0
	for km := 0.0; km <= 100; km += 2.5 {
		f, err := Fare(km, models.ClassSUV)
		if err != nil {
			t.Fatal(err)
		}
		if f < prev {
			t.Fatalf("fare decreased at %f km: %f < %f", km, f, prev)
		}
		prev = f
	}
}

func TestFareUnknownClassFallsBackToEconomy(t *testing.T) {
	f, err := Fare(10, models.VehicleClass("rickshaw"))
	if err != nil {
		t.Fatal(err)
	}
	if f != 50+10*10 {
		t.Fatalf("expected economy table, got %f", f)
	}
}

func TestFareCaseInsensitiveClass(t *testing.T) {
	f, err := Fare(4, models.ClassPremiumUC)
	if err != nil {
		t.Fatal(err)
	}
	if f != 100+15*4 {
		t.Fatalf("expected premium table for PREMIUM, got %f", f)
	}
}

func TestFareRejectsBadDistance(t *testing.T) {
	for _, km := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := Fare(km, models.ClassEconomy); err == nil {
			t.Fatalf("expected error for distance %f", km)
		}
	}
}

func TestDurationMinutes(t *testing.T) {
	if m := DurationMinutes(40, 40); m != 60 {
		t.Fatalf("expected 60 minutes, got %d", m)
	}
	if m := DurationMinutes(20, 0); m != 30 {
		t.Fatalf("expected default speed fallback, got %d", m)
	}
}
