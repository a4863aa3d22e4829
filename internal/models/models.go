package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// VehicleClass is the categorical tier governing the fare table and
// driver/ride matching.
type VehicleClass string

const (
	ClassEconomy VehicleClass = "economy"
	ClassSUV     VehicleClass = "suv"
	ClassLuxury  VehicleClass = "luxury"
	ClassPremium VehicleClass = "premium"
	// ClassPremiumUC lowercases to the same string as ClassPremium. Upstream
	// quirk; class matching is case-insensitive so the two collide.
	ClassPremiumUC VehicleClass = "PREMIUM"
)

type RideStatus string

const (
	RidePending    RideStatus = "pending"
	RideAccepted   RideStatus = "accepted"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideCancelled
}

type Ride struct {
	ID                 string       `json:"id"`
	RiderID            string       `json:"rider_id"`
	DriverID           string       `json:"driver_id,omitempty"`
	ItineraryID        string       `json:"itinerary_id,omitempty"`
	LegIndex           int          `json:"leg_index,omitempty"`
	PickupAddress      string       `json:"pickup_address"`
	Pickup             Coord        `json:"pickup"`
	DestinationAddress string       `json:"destination_address"`
	Destination        Coord        `json:"destination"`
	Status             RideStatus   `json:"status"`
	VehicleClass       VehicleClass `json:"vehicle_class"`
	DistanceKm         float64      `json:"distance_km"`
	DurationMinutes    int          `json:"duration_minutes"`
	EstimatedFare      float64      `json:"estimated_fare"`
	FinalFare          *float64     `json:"final_fare,omitempty"`
	Rating             *int         `json:"rating,omitempty"`
	Feedback           string       `json:"feedback,omitempty"`
	PaymentHoldID      string       `json:"payment_hold_id,omitempty"`
	ScheduledTime      *time.Time   `json:"scheduled_time,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
}

// DriverLocation is the locator's read-only view of a driver. Loc is nil when
// the driver has never reported a position.
type DriverLocation struct {
	DriverID     string       `json:"driver_id"`
	Loc          *Coord       `json:"loc,omitempty"`
	City         string       `json:"city,omitempty"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	Available    bool         `json:"available"`
	Rating       float64      `json:"rating"`
	Updated      time.Time    `json:"updated"`
}

type ItineraryStatus string

const (
	ItineraryPending    ItineraryStatus = "pending"
	ItineraryConfirmed  ItineraryStatus = "confirmed"
	ItineraryInProgress ItineraryStatus = "in_progress"
	ItineraryCompleted  ItineraryStatus = "completed"
	ItineraryCancelled  ItineraryStatus = "cancelled"
	ItineraryRejected   ItineraryStatus = "rejected"
)

func (s ItineraryStatus) Terminal() bool {
	return s == ItineraryCompleted || s == ItineraryCancelled || s == ItineraryRejected
}

// FlightDetails gates the airport legs of an itinerary. Zero times mean the
// corresponding detail has not been supplied yet.
type FlightDetails struct {
	DepartureCity   string    `json:"departure_city"`
	DepartureTime   time.Time `json:"departure_time"`
	ArrivalCity     string    `json:"arrival_city"`
	ArrivalTime     time.Time `json:"arrival_time"`
	ReturnDeparture time.Time `json:"return_departure"`
}

type Activity struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type Itinerary struct {
	ID           string          `json:"id"`
	RiderID      string          `json:"rider_id"`
	DriverID     string          `json:"driver_id,omitempty"`
	Destination  string          `json:"destination"`
	HotelName    string          `json:"hotel_name,omitempty"`
	VehicleClass VehicleClass    `json:"vehicle_class"`
	TotalPrice   float64         `json:"total_price"`
	Status       ItineraryStatus `json:"status"`
	Flight       *FlightDetails  `json:"flight,omitempty"`
	Activities   []Activity      `json:"activities,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TotalLegs is the planned leg count: two airport transfers on each side plus
// one ride per activity.
func (it *Itinerary) TotalLegs() int { return len(it.Activities) + 4 }

// Event is the opaque payload handed to a notification sink.
type Event struct {
	Kind   string         `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}
