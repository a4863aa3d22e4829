package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/models"
)

// RedisDrivers implements DriverStore on Redis: positions in a GEO key,
// metadata in per-driver hashes, membership in a set. Written by the
// location consumer, read by the locator.
type RedisDrivers struct {
	client *redis.Client
	geoKey string
}

func NewRedisDrivers(addr, password, geoKey string) *RedisDrivers {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisDrivers{client: c, geoKey: geoKey}
}

func metaKey(id string) string { return "driver:meta:" + id }

const membersKey = "drivers"

func (r *RedisDrivers) UpsertDriver(ctx context.Context, d models.DriverLocation) error {
	if d.Loc != nil {
		if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
			Longitude: d.Loc.Lng, Latitude: d.Loc.Lat, Name: d.DriverID,
		}).Result(); err != nil {
			return err
		}
	}
	meta := map[string]interface{}{
		"city":          d.City,
		"vehicle_class": string(d.VehicleClass),
		"available":     strconv.FormatBool(d.Available),
		"rating":        strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"updated":       time.Now().Format(time.RFC3339),
	}
	if err := r.client.HSet(ctx, metaKey(d.DriverID), meta).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, membersKey, d.DriverID).Err()
}

func (r *RedisDrivers) GetDriver(ctx context.Context, driverID string) (models.DriverLocation, error) {
	m, err := r.client.HGetAll(ctx, metaKey(driverID)).Result()
	if err != nil {
		return models.DriverLocation{}, err
	}
	if len(m) == 0 {
		return models.DriverLocation{}, domainerr.NotFound("driver %s not found", driverID)
	}
	d := models.DriverLocation{
		DriverID:     driverID,
		City:         m["city"],
		VehicleClass: models.VehicleClass(m["vehicle_class"]),
	}
	if v, ok := m["available"]; ok {
		d.Available = v == "true"
	}
	if v, ok := m["rating"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.Rating = f
		}
	}
	if v, ok := m["updated"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			d.Updated = t
		}
	}
	pos, err := r.client.GeoPos(ctx, r.geoKey, driverID).Result()
	if err == nil && len(pos) == 1 && pos[0] != nil {
		d.Loc = &models.Coord{Lat: pos[0].Latitude, Lng: pos[0].Longitude}
	}
	return d, nil
}

func (r *RedisDrivers) ListAvailableDrivers(ctx context.Context) ([]models.DriverLocation, error) {
	ids, err := r.client.SMembers(ctx, membersKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverLocation, 0, len(ids))
	for _, id := range ids {
		d, err := r.GetDriver(ctx, id)
		if err != nil {
			// stale membership entries are skipped, not fatal
			continue
		}
		if d.Available {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *RedisDrivers) SetDriverRating(ctx context.Context, driverID string, rating float64) error {
	return r.client.HSet(ctx, metaKey(driverID), "rating", strconv.FormatFloat(rating, 'f', -1, 64)).Err()
}
