package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/voyago/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	sCalls   int
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastMeta = values
	return nil
}

func (f *fakeUpdater) SAdd(ctx context.Context, key string, member string) error {
	f.sCalls++
	return nil
}

func sampleLocation() *models.DriverLocation {
	return &models.DriverLocation{
		DriverID:     "d1",
		Loc:          &models.Coord{Lat: 12.97, Lng: 77.59},
		City:         "Bangalore",
		VehicleClass: models.ClassEconomy,
		Available:    true,
		Rating:       4.5,
		Updated:      time.Now(),
	}
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, sampleLocation(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if f.sCalls == 0 {
		t.Fatalf("expected membership set update")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, sampleLocation(), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestUpdateRedisWithRetry_SkipsGeoWithoutPosition(t *testing.T) {
	f := &fakeUpdater{}
	loc := sampleLocation()
	loc.Loc = nil
	if err := updateRedisWithRetry(context.Background(), f, loc, 3, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.geoCalls != 0 {
		t.Fatalf("expected no geo calls, got %d", f.geoCalls)
	}
	if f.lastMeta["city"] != "Bangalore" {
		t.Fatalf("expected meta city, got %v", f.lastMeta)
	}
}
