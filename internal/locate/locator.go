// Package locate finds eligible drivers for a pickup using a hybrid
// geofence + city-token strategy.
package locate

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/example/voyago/internal/geo"
	"github.com/example/voyago/internal/models"
	"github.com/example/voyago/internal/storage"
)

// DefaultRadiusKm is the geofence applied when the caller passes no radius.
const DefaultRadiusKm = 50.0

type Locator struct {
	Drivers  storage.DriverStore
	Logger   *slog.Logger
	RadiusKm float64
}

func New(drivers storage.DriverStore, logger *slog.Logger, radiusKm float64) *Locator {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	return &Locator{Drivers: drivers, Logger: logger, RadiusKm: radiusKm}
}

// Tokens lowercases s, splits on whitespace, commas and hyphens, and keeps
// fragments longer than two characters.
func Tokens(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '-'
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			out[f] = struct{}{}
		}
	}
	return out
}

// TokensOverlap reports whether the two strings share any significant token.
func TokensOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	at := Tokens(a)
	for t := range Tokens(b) {
		if _, ok := at[t]; ok {
			return true
		}
	}
	return false
}

// ByRadius returns available drivers with a known position within maxKm of
// the pickup. Drivers with bad coordinates are logged and skipped.
func (l *Locator) ByRadius(ctx context.Context, pickup models.Coord, maxKm float64) ([]models.DriverLocation, error) {
	if maxKm <= 0 {
		maxKm = l.RadiusKm
	}
	drivers, err := l.Drivers.ListAvailableDrivers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverLocation, 0)
	for _, d := range drivers {
		if d.Loc == nil {
			continue
		}
		if err := geo.ValidateCoord(*d.Loc); err != nil {
			l.Logger.Warn("skipping driver with bad coordinates", "driver_id", d.DriverID, "error", err)
			continue
		}
		if geo.Distance(pickup, *d.Loc) <= maxKm {
			out = append(out, d)
		}
	}
	return out, nil
}

// ByCityToken returns available drivers whose declared city shares a token
// with the pickup address.
func (l *Locator) ByCityToken(ctx context.Context, pickupAddress string) ([]models.DriverLocation, error) {
	drivers, err := l.Drivers.ListAvailableDrivers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverLocation, 0)
	for _, d := range drivers {
		if d.City == "" {
			continue
		}
		if TokensOverlap(d.City, pickupAddress) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Eligible is the union of radius and city-token matches, de-duplicated by
// driver ID. Vehicle-class filtering is the caller's concern.
func (l *Locator) Eligible(ctx context.Context, pickup models.Coord, pickupAddress string) ([]models.DriverLocation, error) {
	byRadius, err := l.ByRadius(ctx, pickup, l.RadiusKm)
	if err != nil {
		return nil, err
	}
	byCity, err := l.ByCityToken(ctx, pickupAddress)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(byRadius)+len(byCity))
	out := make([]models.DriverLocation, 0, len(byRadius)+len(byCity))
	for _, d := range append(byRadius, byCity...) {
		if _, ok := seen[d.DriverID]; ok {
			continue
		}
		seen[d.DriverID] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}
