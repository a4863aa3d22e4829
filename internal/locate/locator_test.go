package locate

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/example/voyago/internal/models"
	"github.com/example/voyago/internal/storage"
)

func testLocator(t *testing.T, drivers ...models.DriverLocation) *Locator {
	t.Helper()
	ds := storage.NewMemoryDrivers()
	for _, d := range drivers {
		if err := ds.UpsertDriver(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}
	return New(ds, slog.Default(), 50)
}

func TestTokensDiscardShortFragments(t *testing.T) {
	got := Tokens("Panaji Bus Stand, Goa")
	for _, want := range []string{"panaji", "bus", "stand", "goa"} {
		if _, ok := got[want]; !ok {
			t.Fatalf("missing token %q in %v", want, got)
		}
	}
	if _, ok := Tokens("MG Road")["mg"]; ok {
		t.Fatal("two-char token should be discarded")
	}
}

func TestTokensOverlapCityVsAddress(t *testing.T) {
	if !TokensOverlap("Goa", "Panaji Bus Stand, Goa") {
		t.Fatal("expected overlap on goa")
	}
	if TokensOverlap("Mumbai", "Panaji Bus Stand, Goa") {
		t.Fatal("unexpected overlap")
	}
	if TokensOverlap("", "Panaji") || TokensOverlap("Goa", "") {
		t.Fatal("empty input must not match")
	}
}

func TestByRadiusKeepsNearbySkipsFar(t *testing.T) {
	near := models.DriverLocation{DriverID: "near", Loc: &models.Coord{Lat: 12.98, Lng: 77.60}, Available: true}
	far := models.DriverLocation{DriverID: "far", Loc: &models.Coord{Lat: 19.07, Lng: 72.87}, Available: true}
	noLoc := models.DriverLocation{DriverID: "noloc", Available: true}
	l := testLocator(t, near, far, noLoc)

	got, err := l.ByRadius(context.Background(), models.Coord{Lat: 12.9716, Lng: 77.5946}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "near" {
		t.Fatalf("expected only near driver, got %v", got)
	}
}

func TestByRadiusSkipsBadCoordinates(t *testing.T) {
	bad := models.DriverLocation{DriverID: "bad", Loc: &models.Coord{Lat: math.NaN(), Lng: 77.6}, Available: true}
	ok := models.DriverLocation{DriverID: "ok", Loc: &models.Coord{Lat: 12.98, Lng: 77.60}, Available: true}
	l := testLocator(t, bad, ok)

	got, err := l.ByRadius(context.Background(), models.Coord{Lat: 12.9716, Lng: 77.5946}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "ok" {
		t.Fatalf("bad-coordinate driver should be skipped, got %v", got)
	}
}

func TestByCityTokenIgnoresUnavailable(t *testing.T) {
	goa := models.DriverLocation{DriverID: "goa", City: "Goa", Available: true}
	offline := models.DriverLocation{DriverID: "offline", City: "Goa", Available: false}
	l := testLocator(t, goa, offline)

	got, err := l.ByCityToken(context.Background(), "Panaji Bus Stand, Goa")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "goa" {
		t.Fatalf("expected only available goa driver, got %v", got)
	}
}

func TestEligibleUnionDeduplicates(t *testing.T) {
	// Matches both by radius and by city; must appear once.
	both := models.DriverLocation{DriverID: "both", City: "Bangalore", Loc: &models.Coord{Lat: 12.98, Lng: 77.60}, Available: true}
	cityOnly := models.DriverLocation{DriverID: "city", City: "Bangalore", Available: true}
	l := testLocator(t, both, cityOnly)

	got, err := l.Eligible(context.Background(), models.Coord{Lat: 12.9716, Lng: 77.5946}, "Indiranagar, Bangalore")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 unique drivers, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, d := range got {
		if seen[d.DriverID] {
			t.Fatalf("duplicate driver %s", d.DriverID)
		}
		seen[d.DriverID] = true
	}
}
