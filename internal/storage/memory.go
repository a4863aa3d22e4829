package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/models"
)

// MemoryStore is the in-process implementation of RideStore and
// ItineraryStore. A single mutex makes every conditional operation atomic.
type MemoryStore struct {
	mu          sync.Mutex
	rides       map[string]*models.Ride
	itineraries map[string]*models.Itinerary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:       make(map[string]*models.Ride),
		itineraries: make(map[string]*models.Itinerary),
	}
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, domainerr.NotFound("ride %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) riderBusyLocked(riderID string) *models.Ride {
	for _, r := range m.rides {
		if r.RiderID == riderID && !r.Status.Terminal() {
			return r
		}
	}
	return nil
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active := m.riderBusyLocked(r.RiderID); active != nil {
		return domainerr.Conflict("rider %s already has an active ride (%s)", r.RiderID, active.Status)
	}
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) CreateLeg(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active := m.riderBusyLocked(r.RiderID); active != nil {
		return domainerr.Conflict("rider %s already has an active ride (%s)", r.RiderID, active.Status)
	}
	for _, existing := range m.rides {
		if existing.ItineraryID == r.ItineraryID && existing.LegIndex == r.LegIndex {
			return domainerr.Conflict("itinerary %s already has leg %d", r.ItineraryID, r.LegIndex)
		}
	}
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, domainerr.NotFound("ride %s not found", rideID)
	}
	if r.Status != models.RidePending {
		return nil, domainerr.Conflict("ride is not pending (current status: %s)", r.Status)
	}
	for _, other := range m.rides {
		if other.ID == rideID || other.DriverID != driverID {
			continue
		}
		if other.Status == models.RideAccepted || other.Status == models.RideInProgress {
			return nil, domainerr.Conflict("driver %s already has an active ride", driverID)
		}
	}
	r.DriverID = driverID
	r.Status = models.RideAccepted
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) TransitionRide(ctx context.Context, rideID string, from, to models.RideStatus, mutate func(*models.Ride)) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, domainerr.NotFound("ride %s not found", rideID)
	}
	if r.Status != from {
		return nil, domainerr.Conflict("ride is %s, expected %s", r.Status, from)
	}
	r.Status = to
	if mutate != nil {
		mutate(r)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRide(ctx context.Context, rideID string, mutate func(*models.Ride)) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, domainerr.NotFound("ride %s not found", rideID)
	}
	if mutate != nil {
		mutate(r)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListOpenRides(ctx context.Context) ([]*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.Status == models.RidePending && r.DriverID == "" {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListLegs(ctx context.Context, itineraryID string) ([]*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.ItineraryID == itineraryID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].LegIndex < out[j].LegIndex
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) DriverRatings(ctx context.Context, driverID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0)
	for _, r := range m.rides {
		if r.DriverID == driverID && r.Rating != nil {
			out = append(out, *r.Rating)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetItinerary(ctx context.Context, id string) (*models.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.itineraries[id]
	if !ok {
		return nil, domainerr.NotFound("itinerary %s not found", id)
	}
	cp := *it
	return &cp, nil
}

func (m *MemoryStore) CreateItinerary(ctx context.Context, it *models.Itinerary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *it
	m.itineraries[it.ID] = &cp
	return nil
}

func (m *MemoryStore) TransitionItinerary(ctx context.Context, id string, from, to models.ItineraryStatus, mutate func(*models.Itinerary)) (*models.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.itineraries[id]
	if !ok {
		return nil, domainerr.NotFound("itinerary %s not found", id)
	}
	if it.Status != from {
		return nil, domainerr.Conflict("itinerary is %s, expected %s", it.Status, from)
	}
	it.Status = to
	if mutate != nil {
		mutate(it)
	}
	cp := *it
	return &cp, nil
}

// MemoryDrivers is the in-process DriverStore.
type MemoryDrivers struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverLocation
}

func NewMemoryDrivers() *MemoryDrivers {
	return &MemoryDrivers{drivers: make(map[string]models.DriverLocation)}
}

func (m *MemoryDrivers) GetDriver(ctx context.Context, driverID string) (models.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return models.DriverLocation{}, domainerr.NotFound("driver %s not found", driverID)
	}
	return d, nil
}

func (m *MemoryDrivers) ListAvailableDrivers(ctx context.Context) ([]models.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DriverLocation, 0, len(m.drivers))
	for _, d := range m.drivers {
		if d.Available {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryDrivers) UpsertDriver(ctx context.Context, d models.DriverLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Updated = time.Now()
	m.drivers[d.DriverID] = d
	return nil
}

func (m *MemoryDrivers) SetDriverRating(ctx context.Context, driverID string, rating float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return domainerr.NotFound("driver %s not found", driverID)
	}
	d.Rating = rating
	m.drivers[driverID] = d
	return nil
}
