// Package itinerary sequences the transportation legs of a multi-stop trip.
// The next leg is derived deterministically from accumulated progress and is
// generated only once the previous leg has completed.
package itinerary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/voyago/internal/dispatch"
	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/ledger"
	"github.com/example/voyago/internal/models"
	"github.com/example/voyago/internal/observability"
	"github.com/example/voyago/internal/rides"
	"github.com/example/voyago/internal/storage"
)

type Scheduler struct {
	Itineraries storage.ItineraryStore
	Rides       *rides.Service
	Ledger      ledger.Ledger
	Sink        dispatch.Sink
	Logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewScheduler(itineraries storage.ItineraryStore, rideSvc *rides.Service, lg ledger.Ledger, sink dispatch.Sink, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		Itineraries: itineraries,
		Rides:       rideSvc,
		Ledger:      lg,
		Sink:        sink,
		Logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockFor serializes leg generation per itinerary. Two concurrent triggers
// reading "ordinal k has no leg yet" must not both create leg k.
func (s *Scheduler) lockFor(itineraryID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[itineraryID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[itineraryID] = l
	}
	return l
}

// CreateParams describes a new itinerary booking.
type CreateParams struct {
	RiderID      string
	Destination  string
	HotelName    string
	VehicleClass models.VehicleClass
	TotalPrice   float64
	Flight       *models.FlightDetails
	Activities   []models.Activity
}

// Create books a new pending itinerary.
func (s *Scheduler) Create(ctx context.Context, p CreateParams) (*models.Itinerary, error) {
	if p.RiderID == "" {
		return nil, domainerr.Validation("rider id is required")
	}
	if p.Destination == "" {
		return nil, domainerr.Validation("destination is required")
	}
	class := p.VehicleClass
	if class == "" {
		class = models.ClassEconomy
	}
	it := &models.Itinerary{
		ID:           uuid.NewString(),
		RiderID:      p.RiderID,
		Destination:  p.Destination,
		HotelName:    p.HotelName,
		VehicleClass: class,
		TotalPrice:   p.TotalPrice,
		Status:       models.ItineraryPending,
		Flight:       p.Flight,
		Activities:   p.Activities,
		CreatedAt:    time.Now(),
	}
	if err := s.Itineraries.CreateItinerary(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// ScheduleNextLeg derives and creates the next leg for the itinerary. It
// returns (nil, nil) when nothing is due: previous leg not completed yet, or
// required metadata for the next ordinal is absent. Once every planned leg
// has completed the itinerary is moved to completed.
func (s *Scheduler) ScheduleNextLeg(ctx context.Context, itineraryID string) (*models.Ride, error) {
	l := s.lockFor(itineraryID)
	l.Lock()
	defer l.Unlock()

	it, err := s.Itineraries.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}

	legs, err := s.Rides.Legs(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	k := len(legs)
	if k > 0 && legs[k-1].Status != models.RideCompleted {
		s.Logger.Info("previous leg not completed, nothing to schedule",
			"itinerary_id", itineraryID, "leg", k-1, "status", legs[k-1].Status)
		return nil, nil
	}

	activities := it.Activities
	lastOrdinal := len(activities) + 3

	if k > lastOrdinal {
		if k > 0 && legs[k-1].Status == models.RideCompleted {
			s.finish(ctx, it)
		}
		return nil, nil
	}

	leg := s.buildLeg(it, k)
	if leg == nil {
		// required metadata absent; callers may retry once it is supplied
		return nil, nil
	}

	ride, err := s.Rides.CreateLeg(ctx, *leg)
	if err != nil {
		return nil, err
	}
	observability.LegsScheduled.Inc()
	s.Logger.Info("scheduled itinerary leg", "itinerary_id", itineraryID, "leg", k, "ride_id", ride.ID)

	// the leg is pre-assigned: only its driver is notified, never the pool
	s.notify(models.Event{Kind: "new_ride_request", Fields: map[string]any{
		"ride_id":             ride.ID,
		"itinerary_id":        itineraryID,
		"leg_index":           k,
		"pickup_address":      ride.PickupAddress,
		"destination_address": ride.DestinationAddress,
		"distance_km":         ride.DistanceKm,
		"estimated_fare":      ride.EstimatedFare,
		"vehicle_class":       string(ride.VehicleClass),
	}}, ride.DriverID)

	return ride, nil
}

// buildLeg maps ordinal k to its segment, or nil when the gating metadata is
// missing.
func (s *Scheduler) buildLeg(it *models.Itinerary, k int) *rides.LegParams {
	a := len(it.Activities)
	base := rides.LegParams{
		ItineraryID:  it.ID,
		LegIndex:     k,
		RiderID:      it.RiderID,
		DriverID:     it.DriverID,
		VehicleClass: it.VehicleClass,
	}

	hotelName := it.HotelName
	if hotelName == "" {
		hotelName = "Hotel"
	}

	switch {
	case k == 0: // origin home -> origin airport
		if it.Flight == nil || it.Flight.DepartureTime.IsZero() {
			return nil
		}
		origin := CityCoord(it.Flight.DepartureCity)
		base.PickupAddress = "Home"
		base.Pickup = origin
		base.DestinationAddress = fmt.Sprintf("%s Airport", cityLabel(it.Flight.DepartureCity))
		base.Destination = airportFor(origin)

	case k == 1: // destination airport -> hotel
		if it.Flight == nil || it.Flight.ArrivalTime.IsZero() {
			return nil
		}
		dest := CityCoord(destCity(it))
		base.PickupAddress = fmt.Sprintf("%s Airport", cityLabel(destCity(it)))
		base.Pickup = airportFor(dest)
		base.DestinationAddress = hotelName
		base.Destination = dest

	case k <= a+1: // hotel -> activity k-2
		if a == 0 {
			return nil
		}
		i := k - 2
		dest := CityCoord(it.Destination)
		activity := it.Activities[i]
		location := activity.Location
		if location == "" {
			location = "Activity Location"
		}
		base.PickupAddress = hotelName
		base.Pickup = dest
		base.DestinationAddress = location
		base.Destination = activityCoord(dest, i)

	case k == a+2: // hotel -> destination airport
		if it.Flight == nil || it.Flight.ReturnDeparture.IsZero() {
			return nil
		}
		dest := CityCoord(destCity(it))
		base.PickupAddress = hotelName
		base.Pickup = dest
		base.DestinationAddress = fmt.Sprintf("%s Airport", cityLabel(destCity(it)))
		base.Destination = airportFor(dest)

	case k == a+3: // origin airport -> home
		var originCity string
		if it.Flight != nil {
			originCity = it.Flight.DepartureCity
		}
		origin := CityCoord(originCity)
		base.PickupAddress = fmt.Sprintf("%s Airport", cityLabel(originCity))
		base.Pickup = airportFor(origin)
		base.DestinationAddress = "Home"
		base.Destination = origin

	default:
		return nil
	}
	return &base
}

func destCity(it *models.Itinerary) string {
	if it.Destination != "" {
		return it.Destination
	}
	if it.Flight != nil {
		return it.Flight.ArrivalCity
	}
	return ""
}

func cityLabel(name string) string {
	if name == "" {
		return "City"
	}
	return name
}

// finish moves the itinerary to completed once every leg is done and pays
// the package price to the driver. The conditional transition guarantees the
// payout runs at most once even when the driver completes the trip manually
// at the same time.
func (s *Scheduler) finish(ctx context.Context, it *models.Itinerary) {
	updated, err := s.Itineraries.TransitionItinerary(ctx, it.ID, models.ItineraryInProgress, models.ItineraryCompleted, nil)
	if domainerr.IsConflict(err) {
		// a confirmed trip whose driver never started it still completes
		// once every leg is done
		updated, err = s.Itineraries.TransitionItinerary(ctx, it.ID, models.ItineraryConfirmed, models.ItineraryCompleted, nil)
	}
	if err != nil {
		if domainerr.IsConflict(err) {
			// lost the race to a concurrent manual completion, or the trip
			// was cancelled under us
			s.Logger.Info("itinerary completion skipped", "itinerary_id", it.ID, "error", err)
		} else {
			s.Logger.Error("itinerary completion failed", "itinerary_id", it.ID, "error", err)
		}
		return
	}
	s.payout(ctx, updated)
	s.notifyStatus(updated)
}

func (s *Scheduler) payout(ctx context.Context, it *models.Itinerary) {
	if it.DriverID == "" || it.TotalPrice <= 0 {
		return
	}
	if err := s.Ledger.Record(ctx, it.DriverID, it.TotalPrice, ledger.Credit,
		fmt.Sprintf("Payment for itinerary %s (%s)", it.ID, it.Destination)); err != nil {
		s.Logger.Error("itinerary payout ledger entry failed", "itinerary_id", it.ID, "driver_id", it.DriverID, "error", err)
	}
}

// Confirm assigns the driver and accepts the booking.
func (s *Scheduler) Confirm(ctx context.Context, itineraryID, driverID string) (*models.Itinerary, error) {
	if driverID == "" {
		return nil, domainerr.Validation("driver id is required")
	}
	it, err := s.Itineraries.TransitionItinerary(ctx, itineraryID, models.ItineraryPending, models.ItineraryConfirmed,
		func(it *models.Itinerary) { it.DriverID = driverID })
	if err != nil {
		return nil, err
	}
	s.notifyStatus(it)
	return it, nil
}

// Reject declines a pending booking.
func (s *Scheduler) Reject(ctx context.Context, itineraryID, driverID string) (*models.Itinerary, error) {
	it, err := s.Itineraries.TransitionItinerary(ctx, itineraryID, models.ItineraryPending, models.ItineraryRejected, nil)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(it)
	return it, nil
}

// StartTrip moves a confirmed itinerary to in_progress. Driver action.
func (s *Scheduler) StartTrip(ctx context.Context, itineraryID, driverID string) (*models.Itinerary, error) {
	cur, err := s.Itineraries.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	if cur.DriverID != driverID {
		return nil, domainerr.Authorization("not the assigned driver for this itinerary")
	}
	it, err := s.Itineraries.TransitionItinerary(ctx, itineraryID, models.ItineraryConfirmed, models.ItineraryInProgress, nil)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(it)
	return it, nil
}

// CompleteTrip finishes an in-progress itinerary and credits the driver with
// the package price. Driver action; the scheduler's automatic completion
// path competes on the same conditional transition.
func (s *Scheduler) CompleteTrip(ctx context.Context, itineraryID, driverID string) (*models.Itinerary, error) {
	cur, err := s.Itineraries.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	if cur.DriverID != driverID {
		return nil, domainerr.Authorization("not the assigned driver for this itinerary")
	}
	it, err := s.Itineraries.TransitionItinerary(ctx, itineraryID, models.ItineraryInProgress, models.ItineraryCompleted, nil)
	if err != nil {
		return nil, err
	}
	s.payout(ctx, it)
	s.notifyStatus(it)
	return it, nil
}

// CancelTrip cancels a booking that has not started. Owner or admin action.
func (s *Scheduler) CancelTrip(ctx context.Context, itineraryID, actorID string, isAdmin bool) (*models.Itinerary, error) {
	cur, err := s.Itineraries.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	if cur.RiderID != actorID && !isAdmin {
		return nil, domainerr.Authorization("not authorized to cancel this itinerary")
	}
	from := cur.Status
	if from != models.ItineraryPending && from != models.ItineraryConfirmed {
		return nil, domainerr.Conflict("cannot cancel a %s itinerary", from)
	}
	it, err := s.Itineraries.TransitionItinerary(ctx, itineraryID, from, models.ItineraryCancelled, nil)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(it)
	return it, nil
}

// Get returns one itinerary.
func (s *Scheduler) Get(ctx context.Context, itineraryID string) (*models.Itinerary, error) {
	return s.Itineraries.GetItinerary(ctx, itineraryID)
}

func (s *Scheduler) notifyStatus(it *models.Itinerary) {
	s.notify(models.Event{Kind: "itinerary_status_update", Fields: map[string]any{
		"itinerary_id": it.ID,
		"status":       string(it.Status),
	}}, it.RiderID)
}

func (s *Scheduler) notify(event models.Event, recipientID string) {
	if s.Sink == nil || recipientID == "" {
		return
	}
	if err := s.Sink.Push(event, recipientID); err != nil {
		observability.NotifyFailures.Inc()
		s.Logger.Warn("notification failed", "kind", event.Kind, "recipient", recipientID, "error", err)
	}
}
