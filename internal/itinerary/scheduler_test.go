package itinerary

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/ledger"
	"github.com/example/voyago/internal/models"
	"github.com/example/voyago/internal/rides"
	"github.com/example/voyago/internal/storage"
)

type fixture struct {
	sched  *Scheduler
	rides  *rides.Service
	ledger *ledger.MemoryLedger
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	lg := ledger.NewMemoryLedger()
	svc := &rides.Service{
		Store:       store,
		Drivers:     storage.NewMemoryDrivers(),
		Ledger:      lg,
		Logger:      logger,
		DriverShare: 0.80,
		AvgSpeedKmh: 40,
	}
	return &fixture{
		sched:  NewScheduler(store, svc, lg, nil, logger),
		rides:  svc,
		ledger: lg,
	}
}

func fullFlight() *models.FlightDetails {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return &models.FlightDetails{
		DepartureCity:   "Bangalore",
		DepartureTime:   base,
		ArrivalCity:     "Goa",
		ArrivalTime:     base.Add(90 * time.Minute),
		ReturnDeparture: base.Add(96 * time.Hour),
	}
}

func bookTrip(t *testing.T, f *fixture, p CreateParams) *models.Itinerary {
	t.Helper()
	if p.RiderID == "" {
		p.RiderID = "rider-1"
	}
	it, err := f.sched.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("create itinerary: %v", err)
	}
	return it
}

func startTrip(t *testing.T, f *fixture, itineraryID, driverID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.sched.Confirm(ctx, itineraryID, driverID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.sched.StartTrip(ctx, itineraryID, driverID); err != nil {
		t.Fatalf("start trip: %v", err)
	}
}

func finishLeg(t *testing.T, f *fixture, rideID, driverID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.rides.Accept(ctx, rideID, driverID); err != nil {
		t.Fatalf("accept leg: %v", err)
	}
	if _, err := f.rides.Start(ctx, rideID, driverID); err != nil {
		t.Fatalf("start leg: %v", err)
	}
	if _, err := f.rides.Complete(ctx, rideID, driverID); err != nil {
		t.Fatalf("complete leg: %v", err)
	}
}

func itineraryPayouts(lg *ledger.MemoryLedger, driverID string) []ledger.Entry {
	out := make([]ledger.Entry, 0)
	for _, e := range lg.AccountEntries(driverID) {
		if strings.HasPrefix(e.Description, "Payment for itinerary") {
			out = append(out, e)
		}
	}
	return out
}

func TestFullTripWalkOneActivity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	it := bookTrip(t, f, CreateParams{
		Destination:  "Goa",
		HotelName:    "Taj Resort",
		VehicleClass: models.ClassEconomy,
		TotalPrice:   15000,
		Flight:       fullFlight(),
		Activities:   []models.Activity{{Name: "Beach Tour", Location: "Baga Beach"}},
	})
	if got := it.TotalLegs(); got != 5 {
		t.Fatalf("expected 5 planned legs, got %d", got)
	}
	startTrip(t, f, it.ID, "driver-a")

	wantPickups := []string{"Home", "Goa Airport", "Taj Resort", "Taj Resort", "Bangalore Airport"}
	for k := 0; k < 5; k++ {
		leg, err := f.sched.ScheduleNextLeg(ctx, it.ID)
		if err != nil {
			t.Fatalf("schedule leg %d: %v", k, err)
		}
		if leg == nil {
			t.Fatalf("expected leg %d, got nil", k)
		}
		if leg.LegIndex != k {
			t.Fatalf("expected leg index %d, got %d", k, leg.LegIndex)
		}
		if leg.DriverID != "driver-a" {
			t.Fatalf("leg %d not pre-assigned: %q", k, leg.DriverID)
		}
		if leg.PickupAddress != wantPickups[k] {
			t.Fatalf("leg %d pickup %q, want %q", k, leg.PickupAddress, wantPickups[k])
		}
		finishLeg(t, f, leg.ID, "driver-a")
	}

	// past the last ordinal: no new leg, the trip closes out
	leg, err := f.sched.ScheduleNextLeg(ctx, it.ID)
	if err != nil {
		t.Fatalf("final schedule call: %v", err)
	}
	if leg != nil {
		t.Fatalf("expected no further legs, got leg %d", leg.LegIndex)
	}
	done, err := f.sched.Get(ctx, it.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != models.ItineraryCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	payouts := itineraryPayouts(f.ledger, "driver-a")
	if len(payouts) != 1 {
		t.Fatalf("expected exactly one package payout, got %d", len(payouts))
	}
	if payouts[0].Amount != 15000 {
		t.Fatalf("expected payout 15000, got %f", payouts[0].Amount)
	}
}

func TestFullTripWalkCompletesWithoutStart(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	it := bookTrip(t, f, CreateParams{
		Destination:  "Goa",
		VehicleClass: models.ClassEconomy,
		TotalPrice:   12000,
		Flight:       fullFlight(),
	})
	// driver confirms but never starts the trip; legs still run
	if _, err := f.sched.Confirm(ctx, it.ID, "driver-a"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	for k := 0; k < 4; k++ {
		leg, err := f.sched.ScheduleNextLeg(ctx, it.ID)
		if err != nil || leg == nil {
			t.Fatalf("leg %d: %v %v", k, leg, err)
		}
		finishLeg(t, f, leg.ID, "driver-a")
	}
	if leg, err := f.sched.ScheduleNextLeg(ctx, it.ID); err != nil || leg != nil {
		t.Fatalf("final schedule call: %v %v", leg, err)
	}

	done, err := f.sched.Get(ctx, it.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != models.ItineraryCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	payouts := itineraryPayouts(f.ledger, "driver-a")
	if len(payouts) != 1 || payouts[0].Amount != 12000 {
		t.Fatalf("unexpected payouts: %+v", payouts)
	}
}

func TestScheduleGatesOnIncompleteLeg(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	it := bookTrip(t, f, CreateParams{
		Destination: "Goa", VehicleClass: models.ClassEconomy, Flight: fullFlight(),
	})
	startTrip(t, f, it.ID, "driver-a")

	first, err := f.sched.ScheduleNextLeg(ctx, it.ID)
	if err != nil || first == nil {
		t.Fatalf("first leg: %v %v", first, err)
	}
	// leg 0 still pending: repeat calls are no-ops
	for i := 0; i < 2; i++ {
		leg, err := f.sched.ScheduleNextLeg(ctx, it.ID)
		if err != nil {
			t.Fatalf("repeat schedule: %v", err)
		}
		if leg != nil {
			t.Fatalf("expected nil while leg 0 incomplete, got leg %d", leg.LegIndex)
		}
	}
	legs, err := f.rides.Legs(ctx, it.ID)
	if err != nil {
		t.Fatalf("legs: %v", err)
	}
	if len(legs) != 1 {
		t.Fatalf("expected a single leg, got %d", len(legs))
	}
}

func TestScheduleWithoutFlightIsNoOp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	it := bookTrip(t, f, CreateParams{
		Destination: "Goa", VehicleClass: models.ClassEconomy,
	})
	startTrip(t, f, it.ID, "driver-a")

	leg, err := f.sched.ScheduleNextLeg(ctx, it.ID)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if leg != nil {
		t.Fatalf("expected nil without flight details")
	}
	legs, _ := f.rides.Legs(ctx, it.ID)
	if len(legs) != 0 {
		t.Fatalf("expected no legs, got %d", len(legs))
	}
}

func TestScheduleStopsOnMissingReturnDeparture(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	flight := fullFlight()
	flight.ReturnDeparture = time.Time{}
	it := bookTrip(t, f, CreateParams{
		Destination: "Goa", VehicleClass: models.ClassEconomy, Flight: flight,
	})
	startTrip(t, f, it.ID, "driver-a")

	// no activities: ordinals 0 and 1, then the return transfer is gated
	for k := 0; k < 2; k++ {
		leg, err := f.sched.ScheduleNextLeg(ctx, it.ID)
		if err != nil || leg == nil {
			t.Fatalf("leg %d: %v %v", k, leg, err)
		}
		finishLeg(t, f, leg.ID, "driver-a")
	}
	leg, err := f.sched.ScheduleNextLeg(ctx, it.ID)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if leg != nil {
		t.Fatalf("expected gate on missing return departure, got leg %d", leg.LegIndex)
	}
}

func TestConfirmRejectLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	it := bookTrip(t, f, CreateParams{Destination: "Goa", VehicleClass: models.ClassSUV})
	if it.Status != models.ItineraryPending {
		t.Fatalf("expected pending, got %s", it.Status)
	}

	if _, err := f.sched.Confirm(ctx, it.ID, ""); !domainerr.IsValidation(err) {
		t.Fatalf("expected validation error for empty driver, got %v", err)
	}
	confirmed, err := f.sched.Confirm(ctx, it.ID, "driver-a")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != models.ItineraryConfirmed || confirmed.DriverID != "driver-a" {
		t.Fatalf("unexpected state: %+v", confirmed)
	}
	if _, err := f.sched.Reject(ctx, it.ID, "driver-b"); !domainerr.IsConflict(err) {
		t.Fatalf("expected conflict rejecting a confirmed itinerary, got %v", err)
	}

	other := bookTrip(t, f, CreateParams{RiderID: "rider-2", Destination: "Goa", VehicleClass: models.ClassSUV})
	rejected, err := f.sched.Reject(ctx, other.ID, "driver-a")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != models.ItineraryRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
}

func TestStartAndCompleteTripAuthz(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	it := bookTrip(t, f, CreateParams{Destination: "Goa", VehicleClass: models.ClassEconomy, TotalPrice: 9000})
	if _, err := f.sched.Confirm(ctx, it.ID, "driver-a"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.sched.StartTrip(ctx, it.ID, "driver-b"); !domainerr.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, err := f.sched.StartTrip(ctx, it.ID, "driver-a"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.sched.CompleteTrip(ctx, it.ID, "driver-b"); !domainerr.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	done, err := f.sched.CompleteTrip(ctx, it.ID, "driver-a")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.ItineraryCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	payouts := itineraryPayouts(f.ledger, "driver-a")
	if len(payouts) != 1 || payouts[0].Amount != 9000 {
		t.Fatalf("unexpected payouts: %+v", payouts)
	}
	// replay cannot double pay
	if _, err := f.sched.CompleteTrip(ctx, it.ID, "driver-a"); !domainerr.IsConflict(err) {
		t.Fatalf("expected conflict on replay, got %v", err)
	}
	if got := len(itineraryPayouts(f.ledger, "driver-a")); got != 1 {
		t.Fatalf("expected a single payout after replay, got %d", got)
	}
}

func TestCancelTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	it := bookTrip(t, f, CreateParams{Destination: "Goa", VehicleClass: models.ClassEconomy})
	if _, err := f.sched.CancelTrip(ctx, it.ID, "rider-2", false); !domainerr.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	cancelled, err := f.sched.CancelTrip(ctx, it.ID, "rider-1", false)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.ItineraryCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// an in-progress trip cannot be cancelled
	active := bookTrip(t, f, CreateParams{RiderID: "rider-2", Destination: "Goa", VehicleClass: models.ClassEconomy})
	startTrip(t, f, active.ID, "driver-a")
	if _, err := f.sched.CancelTrip(ctx, active.ID, "rider-2", false); !domainerr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCityCoordResolution(t *testing.T) {
	goa := CityCoord("Goa")
	if goa.Lat != 15.2993 {
		t.Fatalf("unexpected goa coord: %+v", goa)
	}
	if got := CityCoord("goa, india"); got != goa {
		t.Fatalf("substring match failed: %+v", got)
	}
	if got := CityCoord("Atlantis"); got != fallbackCity {
		t.Fatalf("expected fallback for unknown city, got %+v", got)
	}
	if got := CityCoord(""); got != fallbackCity {
		t.Fatalf("expected fallback for empty city, got %+v", got)
	}

	airport := airportFor(goa)
	if airport.Lat != goa.Lat+0.2 || airport.Lng != goa.Lng+0.2 {
		t.Fatalf("unexpected airport offset: %+v", airport)
	}
}
