// Package rides owns the ride request state machine: creation, matching
// notifications, the guarded transitions and the completion revenue split.
package rides

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/voyago/internal/dispatch"
	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/geo"
	"github.com/example/voyago/internal/ledger"
	"github.com/example/voyago/internal/locate"
	"github.com/example/voyago/internal/models"
	"github.com/example/voyago/internal/observability"
	"github.com/example/voyago/internal/payments"
	"github.com/example/voyago/internal/pricing"
	"github.com/example/voyago/internal/storage"
)

// DefaultDriverShare is the driver's fraction of a completed fare; the
// remainder goes to the platform account.
const DefaultDriverShare = 0.80

type Service struct {
	Store   storage.RideStore
	Drivers storage.DriverStore
	Locator *locate.Locator
	Sink    dispatch.Sink
	Ledger  ledger.Ledger
	Logger  *slog.Logger

	// Payments is optional; when set, completed rides capture their hold and
	// cancelled rides release it.
	Payments payments.Client

	// PlatformAccountID receives the platform share. When empty the share is
	// dropped with a warning.
	PlatformAccountID string
	DriverShare       float64
	AvgSpeedKmh       float64
}

func (s *Service) driverShare() float64 {
	if s.DriverShare <= 0 || s.DriverShare > 1 {
		return DefaultDriverShare
	}
	return s.DriverShare
}

type CreateParams struct {
	RiderID            string
	PickupAddress      string
	Pickup             models.Coord
	DestinationAddress string
	Destination        models.Coord
	VehicleClass       models.VehicleClass
	ScheduledTime      *time.Time
}

func (s *Service) buildRide(p CreateParams) (*models.Ride, error) {
	if p.RiderID == "" {
		return nil, domainerr.Validation("rider id is required")
	}
	if err := geo.ValidateCoord(p.Pickup); err != nil {
		return nil, err
	}
	if err := geo.ValidateCoord(p.Destination); err != nil {
		return nil, err
	}
	distance := geo.Distance(p.Pickup, p.Destination)
	fare, err := pricing.Fare(distance, p.VehicleClass)
	if err != nil {
		return nil, err
	}
	class := p.VehicleClass
	if class == "" {
		class = models.ClassEconomy
	}
	return &models.Ride{
		ID:                 uuid.NewString(),
		RiderID:            p.RiderID,
		PickupAddress:      p.PickupAddress,
		Pickup:             p.Pickup,
		DestinationAddress: p.DestinationAddress,
		Destination:        p.Destination,
		Status:             models.RidePending,
		VehicleClass:       class,
		DistanceKm:         distance,
		DurationMinutes:    pricing.DurationMinutes(distance, s.AvgSpeedKmh),
		EstimatedFare:      fare,
		ScheduledTime:      p.ScheduledTime,
		CreatedAt:          time.Now(),
	}, nil
}

// Create registers a pending ride and notifies the eligible driver pool.
// Notification failures never roll back creation.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Ride, error) {
	ride, err := s.buildRide(p)
	if err != nil {
		return nil, err
	}
	if err := s.Store.CreateRide(ctx, ride); err != nil {
		return nil, err
	}
	observability.RidesCreated.Inc()

	if s.Payments != nil {
		holdID, err := s.Payments.Hold(ctx, int64(math.Round(ride.EstimatedFare*100)), "inr", "")
		if err != nil {
			s.Logger.Warn("payment hold failed", "ride_id", ride.ID, "error", err)
		} else if updated, err := s.Store.UpdateRide(ctx, ride.ID, func(r *models.Ride) { r.PaymentHoldID = holdID }); err != nil {
			// the hold exists but its id is lost, so it can never be
			// captured or released
			s.Logger.Error("payment hold id persist failed", "ride_id", ride.ID, "hold_id", holdID, "error", err)
		} else {
			ride = updated
		}
	}

	s.notifyEligible(ctx, ride)
	return ride, nil
}

// LegParams describes one pre-assigned itinerary segment.
type LegParams struct {
	ItineraryID        string
	LegIndex           int
	RiderID            string
	DriverID           string
	PickupAddress      string
	Pickup             models.Coord
	DestinationAddress string
	Destination        models.Coord
	VehicleClass       models.VehicleClass
}

// CreateLeg registers an itinerary leg pre-assigned to the itinerary's
// driver. The leg bypasses open dispatch: it is never offered to the pool.
func (s *Service) CreateLeg(ctx context.Context, p LegParams) (*models.Ride, error) {
	ride, err := s.buildRide(CreateParams{
		RiderID:            p.RiderID,
		PickupAddress:      p.PickupAddress,
		Pickup:             p.Pickup,
		DestinationAddress: p.DestinationAddress,
		Destination:        p.Destination,
		VehicleClass:       p.VehicleClass,
	})
	if err != nil {
		return nil, err
	}
	now := time.Now()
	ride.ItineraryID = p.ItineraryID
	ride.LegIndex = p.LegIndex
	ride.DriverID = p.DriverID
	ride.ScheduledTime = &now
	if err := s.Store.CreateLeg(ctx, ride); err != nil {
		return nil, err
	}
	observability.RidesCreated.Inc()
	return ride, nil
}

// Accept assigns the driver via a conditional update, so exactly one of two
// concurrent accepts wins.
func (s *Service) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	if driverID == "" {
		return nil, domainerr.Validation("driver id is required")
	}
	r, err := s.Store.AcceptRide(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(string(models.RideAccepted)).Inc()
	s.notify(models.Event{Kind: "ride_accepted", Fields: map[string]any{
		"ride_id":   r.ID,
		"driver_id": driverID,
	}}, r.RiderID)
	return r, nil
}

// Start moves an accepted ride to in_progress. Only the assigned driver may
// start it.
func (s *Service) Start(ctx context.Context, rideID, actorID string) (*models.Ride, error) {
	cur, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if cur.DriverID != actorID {
		return nil, domainerr.Authorization("not the assigned driver")
	}
	r, err := s.Store.TransitionRide(ctx, rideID, models.RideAccepted, models.RideInProgress, func(r *models.Ride) {
		now := time.Now()
		r.StartedAt = &now
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(string(models.RideInProgress)).Inc()
	s.notify(models.Event{Kind: "ride_started", Fields: map[string]any{"ride_id": r.ID}}, r.RiderID)
	return r, nil
}

// Complete finishes an in-progress ride and runs the revenue split: the
// driver share is credited to the driver's ledger account and the remainder
// to the platform account. Ledger and payment side effects after the durable
// transition are logged, never propagated.
func (s *Service) Complete(ctx context.Context, rideID, actorID string) (*models.Ride, error) {
	cur, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if cur.DriverID != actorID {
		return nil, domainerr.Authorization("not the assigned driver")
	}
	r, err := s.Store.TransitionRide(ctx, rideID, models.RideInProgress, models.RideCompleted, func(r *models.Ride) {
		now := time.Now()
		r.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(string(models.RideCompleted)).Inc()

	s.settle(ctx, r)

	if s.Payments != nil && r.PaymentHoldID != "" {
		if err := s.Payments.Capture(ctx, r.PaymentHoldID); err != nil {
			s.Logger.Warn("payment capture failed", "ride_id", r.ID, "hold_id", r.PaymentHoldID, "error", err)
		}
	}

	s.notify(models.Event{Kind: "ride_completed", Fields: map[string]any{
		"ride_id": r.ID,
		"fare":    r.EstimatedFare,
	}}, r.RiderID)
	return r, nil
}

func (s *Service) settle(ctx context.Context, r *models.Ride) {
	total := r.EstimatedFare
	if r.FinalFare != nil {
		total = *r.FinalFare
	}
	driverCut := total * s.driverShare()
	platformCut := total - driverCut

	if err := s.Ledger.Record(ctx, r.DriverID, driverCut, ledger.Credit,
		fmt.Sprintf("Fare payout for ride %s", r.ID)); err != nil {
		s.Logger.Error("driver payout ledger entry failed", "ride_id", r.ID, "driver_id", r.DriverID, "error", err)
	}
	if s.PlatformAccountID == "" {
		s.Logger.Warn("no platform account configured, dropping platform share",
			"ride_id", r.ID, "amount", platformCut)
		return
	}
	if err := s.Ledger.Record(ctx, s.PlatformAccountID, platformCut, ledger.Credit,
		fmt.Sprintf("Platform fee for ride %s (%.0f%% of %.2f)", r.ID, (1-s.driverShare())*100, total)); err != nil {
		s.Logger.Error("platform fee ledger entry failed", "ride_id", r.ID, "error", err)
	}
}

// Cancel voids a non-terminal ride. Only the ride's rider or an admin may
// cancel. No refund or split logic runs.
func (s *Service) Cancel(ctx context.Context, rideID, actorID string, isAdmin bool) (*models.Ride, error) {
	var r *models.Ride
	// Status may move under us between read and conditional write; retry the
	// compare-and-set a few times before reporting the conflict.
	for attempt := 0; ; attempt++ {
		cur, err := s.Store.GetRide(ctx, rideID)
		if err != nil {
			return nil, err
		}
		if cur.RiderID != actorID && !isAdmin {
			return nil, domainerr.Authorization("not authorized to cancel this ride")
		}
		if cur.Status.Terminal() {
			return nil, domainerr.Conflict("cannot cancel a %s ride", cur.Status)
		}
		r, err = s.Store.TransitionRide(ctx, rideID, cur.Status, models.RideCancelled, nil)
		if err == nil {
			break
		}
		if !domainerr.IsConflict(err) || attempt >= 2 {
			return nil, err
		}
	}
	observability.RideTransitions.WithLabelValues(string(models.RideCancelled)).Inc()

	if s.Payments != nil && r.PaymentHoldID != "" {
		if err := s.Payments.Cancel(ctx, r.PaymentHoldID); err != nil {
			s.Logger.Warn("payment hold release failed", "ride_id", r.ID, "hold_id", r.PaymentHoldID, "error", err)
		}
	}

	if r.DriverID != "" {
		s.notify(models.Event{Kind: "ride_cancelled", Fields: map[string]any{"ride_id": r.ID}}, r.DriverID)
	}
	return r, nil
}

// Rate records the rider's 1..5 score on a completed ride and recomputes the
// driver's running average. The profile update is a post-transition side
// effect; its failure is logged, not surfaced.
func (s *Service) Rate(ctx context.Context, rideID, actorID string, score int, feedback string) (*models.Ride, error) {
	if score < 1 || score > 5 {
		return nil, domainerr.Validation("rating must be between 1 and 5")
	}
	cur, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if cur.RiderID != actorID {
		return nil, domainerr.Authorization("not authorized to rate this ride")
	}
	if cur.Status != models.RideCompleted {
		return nil, domainerr.Conflict("can only rate completed rides (current: %s)", cur.Status)
	}
	r, err := s.Store.UpdateRide(ctx, rideID, func(r *models.Ride) {
		r.Rating = &score
		r.Feedback = feedback
	})
	if err != nil {
		return nil, err
	}
	if r.DriverID != "" {
		if err := s.refreshDriverRating(ctx, r.DriverID); err != nil {
			s.Logger.Warn("driver rating refresh failed", "driver_id", r.DriverID, "error", err)
		}
	}
	return r, nil
}

func (s *Service) refreshDriverRating(ctx context.Context, driverID string) error {
	ratings, err := s.Store.DriverRatings(ctx, driverID)
	if err != nil {
		return err
	}
	avg := 5.0
	if len(ratings) > 0 {
		sum := 0
		for _, v := range ratings {
			sum += v
		}
		avg = float64(sum) / float64(len(ratings))
	}
	return s.Drivers.SetDriverRating(ctx, driverID, math.Round(avg*100)/100)
}

// Get returns one ride.
func (s *Service) Get(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.Store.GetRide(ctx, rideID)
}

// Legs returns an itinerary's rides ordered by creation time.
func (s *Service) Legs(ctx context.Context, itineraryID string) ([]*models.Ride, error) {
	return s.Store.ListLegs(ctx, itineraryID)
}

// ListAvailable returns the pending, driverless rides visible to a driver:
// exact vehicle-class match (case-insensitive), then the hybrid location
// predicate of city token overlap OR pickup within the geofence radius. A
// driver with neither city nor coordinates sees every class match.
func (s *Service) ListAvailable(ctx context.Context, driverID string) ([]*models.Ride, error) {
	d, err := s.Drivers.GetDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	open, err := s.Store.ListOpenRides(ctx)
	if err != nil {
		return nil, err
	}

	radius := locate.DefaultRadiusKm
	if s.Locator != nil {
		radius = s.Locator.RadiusKm
	}

	out := make([]*models.Ride, 0, len(open))
	for _, r := range open {
		if !strings.EqualFold(string(r.VehicleClass), string(d.VehicleClass)) {
			continue
		}
		if d.City == "" && d.Loc == nil {
			out = append(out, r)
			continue
		}
		tokenMatch := d.City != "" && locate.TokensOverlap(d.City, r.PickupAddress)
		gpsMatch := d.Loc != nil && geo.Distance(*d.Loc, r.Pickup) <= radius
		if tokenMatch || gpsMatch {
			out = append(out, r)
		}
	}
	return out, nil
}

// notifyEligible offers a new open ride to the eligible driver union.
func (s *Service) notifyEligible(ctx context.Context, r *models.Ride) {
	if s.Locator == nil {
		return
	}
	drivers, err := s.Locator.Eligible(ctx, r.Pickup, r.PickupAddress)
	if err != nil {
		s.Logger.Warn("eligible driver scan failed", "ride_id", r.ID, "error", err)
		return
	}
	event := models.Event{Kind: "new_ride_request", Fields: map[string]any{
		"ride_id":             r.ID,
		"pickup_address":      r.PickupAddress,
		"destination_address": r.DestinationAddress,
		"distance_km":         math.Round(r.DistanceKm*100) / 100,
		"estimated_fare":      math.Round(r.EstimatedFare*100) / 100,
		"vehicle_class":       string(r.VehicleClass),
	}}
	for _, d := range drivers {
		s.notify(event, d.DriverID)
	}
}

// notify is best-effort; a failed push is logged and counted, never returned.
func (s *Service) notify(event models.Event, recipientID string) {
	if s.Sink == nil {
		return
	}
	if err := s.Sink.Push(event, recipientID); err != nil {
		observability.NotifyFailures.Inc()
		s.Logger.Warn("notification failed", "kind", event.Kind, "recipient", recipientID, "error", err)
	}
}
