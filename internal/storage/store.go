// Package storage defines persistence for rides, itineraries and driver
// locations. Conditional operations (CreateRide, AcceptRide, TransitionRide,
// CreateLeg) perform their precondition check and write as one atomic unit so
// concurrent callers behave as if serialized.
package storage

import (
	"context"

	"github.com/example/voyago/internal/models"
)

// RideStore owns the canonical ride state.
type RideStore interface {
	GetRide(ctx context.Context, id string) (*models.Ride, error)

	// CreateRide persists a new pending ride, failing with a conflict error
	// if the rider already has a ride in a non-terminal status.
	CreateRide(ctx context.Context, r *models.Ride) error

	// CreateLeg persists a pre-assigned itinerary leg. It applies the same
	// rider exclusivity check as CreateRide and additionally fails with a
	// conflict error if a leg already exists at (itinerary, leg index).
	CreateLeg(ctx context.Context, r *models.Ride) error

	// AcceptRide assigns the driver and moves pending -> accepted in one
	// conditional update. It fails with a conflict error if the ride is no
	// longer pending (double-accept race) or if the driver already has an
	// accepted or in-progress ride.
	AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error)

	// TransitionRide applies mutate and moves from -> to only if the ride is
	// currently in from; otherwise it fails with a conflict error.
	TransitionRide(ctx context.Context, rideID string, from, to models.RideStatus, mutate func(*models.Ride)) (*models.Ride, error)

	// UpdateRide applies an unconditional mutation (rating, final fare).
	UpdateRide(ctx context.Context, rideID string, mutate func(*models.Ride)) (*models.Ride, error)

	// ListOpenRides returns pending, driverless rides, newest first.
	ListOpenRides(ctx context.Context) ([]*models.Ride, error)

	// ListLegs returns an itinerary's rides ordered by creation time.
	ListLegs(ctx context.Context, itineraryID string) ([]*models.Ride, error)

	// DriverRatings returns the ratings of all the driver's rated rides.
	DriverRatings(ctx context.Context, driverID string) ([]int, error)
}

// DriverStore is the read/write view of driver availability and position.
// Read-only for the locator; written by the location ingest path.
type DriverStore interface {
	GetDriver(ctx context.Context, driverID string) (models.DriverLocation, error)
	ListAvailableDrivers(ctx context.Context) ([]models.DriverLocation, error)
	UpsertDriver(ctx context.Context, d models.DriverLocation) error
	SetDriverRating(ctx context.Context, driverID string, rating float64) error
}

// ItineraryStore owns itinerary state.
type ItineraryStore interface {
	GetItinerary(ctx context.Context, id string) (*models.Itinerary, error)
	CreateItinerary(ctx context.Context, it *models.Itinerary) error

	// TransitionItinerary applies mutate and moves from -> to conditionally,
	// failing with a conflict error when the current status differs from from.
	TransitionItinerary(ctx context.Context, id string, from, to models.ItineraryStatus, mutate func(*models.Itinerary)) (*models.Itinerary, error)
}
