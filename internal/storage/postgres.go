package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/lib/pq"

	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/models"
)

// PostgresStore implements RideStore and ItineraryStore on Postgres. Every
// conditional operation is a single statement whose WHERE clause carries the
// precondition, so concurrent writers race on the row, not in Go.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying handle for collaborators sharing the connection
// pool (ledger, migrations).
func (p *PostgresStore) DB() *sql.DB { return p.db }

const rideColumns = `id, rider_id, driver_id, itinerary_id, leg_index,
	pickup_address, pickup_lat, pickup_lng, destination_address, destination_lat, destination_lng,
	status, vehicle_class, distance_km, duration_minutes, estimated_fare, final_fare,
	rating, feedback, payment_hold_id, scheduled_time, created_at, started_at, completed_at`

func scanRide(row interface{ Scan(...any) error }) (*models.Ride, error) {
	var r models.Ride
	var finalFare sql.NullFloat64
	var rating sql.NullInt64
	var scheduled, started, completed sql.NullTime
	err := row.Scan(&r.ID, &r.RiderID, &r.DriverID, &r.ItineraryID, &r.LegIndex,
		&r.PickupAddress, &r.Pickup.Lat, &r.Pickup.Lng,
		&r.DestinationAddress, &r.Destination.Lat, &r.Destination.Lng,
		&r.Status, &r.VehicleClass, &r.DistanceKm, &r.DurationMinutes, &r.EstimatedFare, &finalFare,
		&rating, &r.Feedback, &r.PaymentHoldID, &scheduled, &r.CreatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	if finalFare.Valid {
		v := finalFare.Float64
		r.FinalFare = &v
	}
	if rating.Valid {
		v := int(rating.Int64)
		r.Rating = &v
	}
	if scheduled.Valid {
		t := scheduled.Time
		r.ScheduledTime = &t
	}
	if started.Valid {
		t := started.Time
		r.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	r, err := scanRide(p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return nil, domainerr.NotFound("ride %s not found", id)
	}
	return r, err
}

func insertRideArgs(r *models.Ride) []any {
	var finalFare sql.NullFloat64
	if r.FinalFare != nil {
		finalFare = sql.NullFloat64{Float64: *r.FinalFare, Valid: true}
	}
	var rating sql.NullInt64
	if r.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*r.Rating), Valid: true}
	}
	var scheduled sql.NullTime
	if r.ScheduledTime != nil {
		scheduled = sql.NullTime{Time: *r.ScheduledTime, Valid: true}
	}
	return []any{r.ID, r.RiderID, r.DriverID, r.ItineraryID, r.LegIndex,
		r.PickupAddress, r.Pickup.Lat, r.Pickup.Lng,
		r.DestinationAddress, r.Destination.Lat, r.Destination.Lng,
		r.Status, r.VehicleClass, r.DistanceKm, r.DurationMinutes, r.EstimatedFare, finalFare,
		rating, r.Feedback, r.PaymentHoldID, scheduled, r.CreatedAt}
}

// riderActiveCond guards the single-active-ride-per-rider invariant.
const riderActiveCond = `EXISTS(SELECT 1 FROM rides WHERE rider_id=$2 AND status IN ('pending','accepted','in_progress'))`

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	res, err := p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`)
		SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,NULL,NULL
		WHERE NOT `+riderActiveCond, insertRideArgs(r)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domainerr.Conflict("rider %s already has an active ride", r.RiderID)
	}
	return nil
}

func (p *PostgresStore) CreateLeg(ctx context.Context, r *models.Ride) error {
	res, err := p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`)
		SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,NULL,NULL
		WHERE NOT `+riderActiveCond+`
		  AND NOT EXISTS(SELECT 1 FROM rides WHERE itinerary_id=$4 AND leg_index=$5)`, insertRideArgs(r)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domainerr.Conflict("leg %d for itinerary %s conflicts with existing state", r.LegIndex, r.ItineraryID)
	}
	return nil
}

func (p *PostgresStore) AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides SET driver_id=$1, status='accepted'
		WHERE id=$2 AND status='pending'
		  AND NOT EXISTS(SELECT 1 FROM rides WHERE driver_id=$1 AND status IN ('accepted','in_progress'))
		RETURNING `+rideColumns, driverID, rideID)
	r, err := scanRide(row)
	if err == sql.ErrNoRows {
		// Lost the race, driver busy, or unknown ride; reload to tell apart.
		cur, gerr := p.GetRide(ctx, rideID)
		if gerr != nil {
			return nil, gerr
		}
		if cur.Status != models.RidePending {
			return nil, domainerr.Conflict("ride is not pending (current status: %s)", cur.Status)
		}
		return nil, domainerr.Conflict("driver %s already has an active ride", driverID)
	}
	return r, err
}

func (p *PostgresStore) TransitionRide(ctx context.Context, rideID string, from, to models.RideStatus, mutate func(*models.Ride)) (*models.Ride, error) {
	r, err := p.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	r.Status = to
	if mutate != nil {
		mutate(r)
	}
	var finalFare sql.NullFloat64
	if r.FinalFare != nil {
		finalFare = sql.NullFloat64{Float64: *r.FinalFare, Valid: true}
	}
	var started, completed sql.NullTime
	if r.StartedAt != nil {
		started = sql.NullTime{Time: *r.StartedAt, Valid: true}
	}
	if r.CompletedAt != nil {
		completed = sql.NullTime{Time: *r.CompletedAt, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET status=$1, final_fare=$2, payment_hold_id=$3, started_at=$4, completed_at=$5
		WHERE id=$6 AND status=$7`,
		to, finalFare, r.PaymentHoldID, started, completed, rideID, from)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domainerr.Conflict("ride is no longer %s", from)
	}
	return r, nil
}

func (p *PostgresStore) UpdateRide(ctx context.Context, rideID string, mutate func(*models.Ride)) (*models.Ride, error) {
	r, err := p.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(r)
	}
	var finalFare sql.NullFloat64
	if r.FinalFare != nil {
		finalFare = sql.NullFloat64{Float64: *r.FinalFare, Valid: true}
	}
	var rating sql.NullInt64
	if r.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*r.Rating), Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `UPDATE rides SET final_fare=$1, rating=$2, feedback=$3, payment_hold_id=$4 WHERE id=$5`,
		finalFare, rating, r.Feedback, r.PaymentHoldID, rideID)
	return r, err
}

func (p *PostgresStore) collectRides(rows *sql.Rows) ([]*models.Ride, error) {
	defer rows.Close()
	out := make([]*models.Ride, 0)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListOpenRides(ctx context.Context) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE status='pending' AND driver_id='' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return p.collectRides(rows)
}

func (p *PostgresStore) ListLegs(ctx context.Context, itineraryID string) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE itinerary_id=$1 ORDER BY created_at, leg_index`, itineraryID)
	if err != nil {
		return nil, err
	}
	return p.collectRides(rows)
}

func (p *PostgresStore) DriverRatings(ctx context.Context, driverID string) ([]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT rating FROM rides WHERE driver_id=$1 AND rating IS NOT NULL`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]int, 0)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetItinerary(ctx context.Context, id string) (*models.Itinerary, error) {
	var it models.Itinerary
	var flight, activities []byte
	err := p.db.QueryRowContext(ctx, `SELECT id, rider_id, driver_id, destination, hotel_name,
		vehicle_class, total_price, status, flight, activities, created_at
		FROM itineraries WHERE id=$1`, id).Scan(
		&it.ID, &it.RiderID, &it.DriverID, &it.Destination, &it.HotelName,
		&it.VehicleClass, &it.TotalPrice, &it.Status, &flight, &activities, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domainerr.NotFound("itinerary %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if len(flight) > 0 {
		var fd models.FlightDetails
		if err := json.Unmarshal(flight, &fd); err == nil {
			it.Flight = &fd
		}
	}
	if len(activities) > 0 {
		_ = json.Unmarshal(activities, &it.Activities)
	}
	return &it, nil
}

func (p *PostgresStore) CreateItinerary(ctx context.Context, it *models.Itinerary) error {
	var flight, activities []byte
	if it.Flight != nil {
		flight, _ = json.Marshal(it.Flight)
	}
	if it.Activities != nil {
		activities, _ = json.Marshal(it.Activities)
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO itineraries(id, rider_id, driver_id, destination, hotel_name,
		vehicle_class, total_price, status, flight, activities, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		it.ID, it.RiderID, it.DriverID, it.Destination, it.HotelName,
		it.VehicleClass, it.TotalPrice, it.Status, flight, activities, it.CreatedAt)
	return err
}

func (p *PostgresStore) TransitionItinerary(ctx context.Context, id string, from, to models.ItineraryStatus, mutate func(*models.Itinerary)) (*models.Itinerary, error) {
	it, err := p.GetItinerary(ctx, id)
	if err != nil {
		return nil, err
	}
	it.Status = to
	if mutate != nil {
		mutate(it)
	}
	res, err := p.db.ExecContext(ctx, `UPDATE itineraries SET status=$1, driver_id=$2 WHERE id=$3 AND status=$4`,
		to, it.DriverID, id, from)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, gerr := p.GetItinerary(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, domainerr.Conflict("itinerary is %s, expected %s", cur.Status, from)
	}
	return it, nil
}
