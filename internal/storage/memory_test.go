package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/models"
)

func pendingRide(id, riderID string) *models.Ride {
	return &models.Ride{
		ID:           id,
		RiderID:      riderID,
		Status:       models.RidePending,
		VehicleClass: models.ClassEconomy,
		CreatedAt:    time.Now(),
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateRide(ctx, pendingRide("r1", "rider-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	const drivers = 16
	var wg sync.WaitGroup
	wins := make(chan string, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			if _, err := m.AcceptRide(ctx, "r1", "driver-"+id); err == nil {
				wins <- id
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	winners := make([]string, 0)
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	got, _ := m.GetRide(ctx, "r1")
	if got.Status != models.RideAccepted || got.DriverID != "driver-"+winners[0] {
		t.Fatalf("store disagrees with winner: %+v", got)
	}
}

func TestTransitionRideRequiresFromState(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateRide(ctx, pendingRide("r1", "rider-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := m.TransitionRide(ctx, "r1", models.RideAccepted, models.RideInProgress, nil); !domainerr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := m.TransitionRide(ctx, "r1", models.RidePending, models.RideCancelled, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	got, _ := m.GetRide(ctx, "r1")
	if got.Status != models.RideCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestRiderExclusivityAcrossCreates(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateRide(ctx, pendingRide("r1", "rider-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateRide(ctx, pendingRide("r2", "rider-1")); !domainerr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	leg := pendingRide("r3", "rider-1")
	leg.ItineraryID = "it1"
	if err := m.CreateLeg(ctx, leg); !domainerr.IsConflict(err) {
		t.Fatalf("expected conflict for busy rider leg, got %v", err)
	}

	// terminal ride frees the rider
	if _, err := m.TransitionRide(ctx, "r1", models.RidePending, models.RideCancelled, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := m.CreateRide(ctx, pendingRide("r2", "rider-1")); err != nil {
		t.Fatalf("create after terminal: %v", err)
	}
}

func TestCreateLegUniquePerOrdinal(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	leg := pendingRide("r1", "rider-1")
	leg.ItineraryID = "it1"
	leg.LegIndex = 0
	if err := m.CreateLeg(ctx, leg); err != nil {
		t.Fatalf("create leg: %v", err)
	}
	dup := pendingRide("r2", "rider-2")
	dup.ItineraryID = "it1"
	dup.LegIndex = 0
	if err := m.CreateLeg(ctx, dup); !domainerr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestListOpenRidesExcludesAssigned(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.CreateRide(ctx, pendingRide("r1", "rider-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	assigned := pendingRide("r2", "rider-2")
	assigned.DriverID = "driver-a"
	assigned.ItineraryID = "it1"
	if err := m.CreateLeg(ctx, assigned); err != nil {
		t.Fatalf("create leg: %v", err)
	}

	open, err := m.ListOpenRides(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 || open[0].ID != "r1" {
		t.Fatalf("expected only the unassigned ride, got %+v", open)
	}
}

func TestTransitionItineraryConditional(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	it := &models.Itinerary{
		ID: "it1", RiderID: "rider-1", Destination: "Goa",
		VehicleClass: models.ClassEconomy, Status: models.ItineraryPending, CreatedAt: time.Now(),
	}
	if err := m.CreateItinerary(ctx, it); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.TransitionItinerary(ctx, "it1", models.ItineraryPending, models.ItineraryConfirmed,
		func(it *models.Itinerary) { it.DriverID = "driver-a" })
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Status != models.ItineraryConfirmed || got.DriverID != "driver-a" {
		t.Fatalf("unexpected state: %+v", got)
	}
	if _, err := m.TransitionItinerary(ctx, "it1", models.ItineraryPending, models.ItineraryRejected, nil); !domainerr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
