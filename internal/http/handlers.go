// Package httpapi exposes the ride and itinerary operations over HTTP.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/voyago/internal/config"
	"github.com/example/voyago/internal/dispatch"
	"github.com/example/voyago/internal/domainerr"
	"github.com/example/voyago/internal/ingest"
	"github.com/example/voyago/internal/itinerary"
	"github.com/example/voyago/internal/ledger"
	"github.com/example/voyago/internal/locate"
	"github.com/example/voyago/internal/logging"
	"github.com/example/voyago/internal/models"
	"github.com/example/voyago/internal/observability"
	"github.com/example/voyago/internal/payments"
	"github.com/example/voyago/internal/rides"
	"github.com/example/voyago/internal/storage"
)

type Server struct {
	Rides     *rides.Service
	Scheduler *itinerary.Scheduler
	Drivers   storage.DriverStore
	Kafka     *ingest.KafkaProducer
	WSReg     *dispatch.WSRegistry

	mux    *mux.Router
	logger *slog.Logger
}

// NewServer wires the service graph from configuration: Postgres when a DSN
// is present (memory otherwise), Redis driver index when configured, Kafka
// publishing when brokers are set, and Stripe when a key is supplied.
func NewServer(cfg config.ServerConfig) *Server {
	logger := logging.NewLogger(cfg.LogLevel)

	var rideStore storage.RideStore
	var itinStore storage.ItineraryStore
	var lg ledger.Ledger
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			rideStore = ps
			itinStore = ps
			lg = ledger.NewPostgresLedger(ps.DB())
		} else {
			logger.Error("postgres unavailable, falling back to memory store", "error", err)
		}
	}
	if rideStore == nil {
		mem := storage.NewMemoryStore()
		rideStore = mem
		itinStore = mem
		lg = ledger.NewMemoryLedger()
	}

	var drivers storage.DriverStore
	if cfg.RedisAddr != "" {
		drivers = storage.NewRedisDrivers(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		drivers = storage.NewMemoryDrivers()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	wsreg := dispatch.NewWSRegistry()
	var sink dispatch.Sink = dispatch.NewPushDispatcher(cfg.PushEndpoint, wsreg)

	var pay payments.Client
	if cfg.StripeAPIKey != "" {
		pay = payments.NewStripeClient(cfg.StripeAPIKey)
	}

	locator := locate.New(drivers, logger, cfg.GeofenceRadiusKm)
	rideSvc := &rides.Service{
		Store:             rideStore,
		Drivers:           drivers,
		Locator:           locator,
		Sink:              sink,
		Ledger:            lg,
		Logger:            logger,
		Payments:          pay,
		PlatformAccountID: cfg.PlatformAccountID,
		DriverShare:       cfg.DriverShare,
		AvgSpeedKmh:       cfg.AvgSpeedKmh,
	}
	sched := itinerary.NewScheduler(itinStore, rideSvc, lg, sink, logger)

	s := &Server{
		Rides:     rideSvc,
		Scheduler: sched,
		Drivers:   drivers,
		Kafka:     kp,
		WSReg:     wsreg,
		mux:       mux.NewRouter(),
		logger:    logger,
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/available", s.handleAvailableRides).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleTransitionRide).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleCancelRide).Methods("DELETE")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/rate", s.handleRateRide).Methods("POST")

	s.mux.HandleFunc("/api/v1/itineraries", s.handleCreateItinerary).Methods("POST")
	s.mux.HandleFunc("/api/v1/itineraries/{itinerary_id}", s.handleGetItinerary).Methods("GET")
	s.mux.HandleFunc("/api/v1/itineraries/{itinerary_id}", s.handleTransitionItinerary).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/itineraries/{itinerary_id}/schedule-next", s.handleScheduleNextLeg).Methods("POST")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := domainerr.StatusCode(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createRideRequest struct {
	RiderID            string     `json:"rider_id"`
	PickupAddress      string     `json:"pickup_address"`
	PickupLat          float64    `json:"pickup_lat"`
	PickupLng          float64    `json:"pickup_lng"`
	DestinationAddress string     `json:"destination_address"`
	DestinationLat     float64    `json:"destination_lat"`
	DestinationLng     float64    `json:"destination_lng"`
	VehicleClass       string     `json:"vehicle_class"`
	ScheduledTime      *time.Time `json:"scheduled_time,omitempty"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domainerr.Validation("invalid request body: %v", err))
		return
	}
	ride, err := s.Rides.Create(r.Context(), rides.CreateParams{
		RiderID:            req.RiderID,
		PickupAddress:      req.PickupAddress,
		Pickup:             models.Coord{Lat: req.PickupLat, Lng: req.PickupLng},
		DestinationAddress: req.DestinationAddress,
		Destination:        models.Coord{Lat: req.DestinationLat, Lng: req.DestinationLng},
		VehicleClass:       models.VehicleClass(req.VehicleClass),
		ScheduledTime:      req.ScheduledTime,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleAvailableRides(w http.ResponseWriter, r *http.Request) {
	driverID := r.URL.Query().Get("driver_id")
	if driverID == "" {
		s.writeError(w, domainerr.Validation("driver_id is required"))
		return
	}
	list, err := s.Rides.ListAvailable(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Rides.Get(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

type transitionRequest struct {
	Status  string `json:"status"`
	ActorID string `json:"actor_id"`
}

func (s *Server) handleTransitionRide(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domainerr.Validation("invalid request body: %v", err))
		return
	}
	var ride *models.Ride
	var err error
	switch models.RideStatus(req.Status) {
	case models.RideAccepted:
		ride, err = s.Rides.Accept(r.Context(), rideID, req.ActorID)
	case models.RideInProgress:
		ride, err = s.Rides.Start(r.Context(), rideID, req.ActorID)
	case models.RideCompleted:
		ride, err = s.Rides.Complete(r.Context(), rideID, req.ActorID)
	case models.RideCancelled:
		ride, err = s.Rides.Cancel(r.Context(), rideID, req.ActorID, isAdmin(r))
	default:
		err = domainerr.Validation("unsupported target status %q", req.Status)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("actor_id")
	ride, err := s.Rides.Cancel(r.Context(), mux.Vars(r)["ride_id"], actorID, isAdmin(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

type rateRequest struct {
	ActorID  string `json:"actor_id"`
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

func (s *Server) handleRateRide(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domainerr.Validation("invalid request body: %v", err))
		return
	}
	ride, err := s.Rides.Rate(r.Context(), mux.Vars(r)["ride_id"], req.ActorID, req.Rating, req.Feedback)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

type createItineraryRequest struct {
	RiderID      string                `json:"rider_id"`
	Destination  string                `json:"destination"`
	HotelName    string                `json:"hotel_name,omitempty"`
	VehicleClass string                `json:"vehicle_class"`
	TotalPrice   float64               `json:"total_price"`
	Flight       *models.FlightDetails `json:"flight,omitempty"`
	Activities   []models.Activity     `json:"activities,omitempty"`
}

func (s *Server) handleCreateItinerary(w http.ResponseWriter, r *http.Request) {
	var req createItineraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domainerr.Validation("invalid request body: %v", err))
		return
	}
	it, err := s.Scheduler.Create(r.Context(), itinerary.CreateParams{
		RiderID:      req.RiderID,
		Destination:  req.Destination,
		HotelName:    req.HotelName,
		VehicleClass: models.VehicleClass(req.VehicleClass),
		TotalPrice:   req.TotalPrice,
		Flight:       req.Flight,
		Activities:   req.Activities,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (s *Server) handleGetItinerary(w http.ResponseWriter, r *http.Request) {
	it, err := s.Scheduler.Get(r.Context(), mux.Vars(r)["itinerary_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleTransitionItinerary(w http.ResponseWriter, r *http.Request) {
	itinID := mux.Vars(r)["itinerary_id"]
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domainerr.Validation("invalid request body: %v", err))
		return
	}
	var it *models.Itinerary
	var err error
	switch models.ItineraryStatus(req.Status) {
	case models.ItineraryConfirmed:
		it, err = s.Scheduler.Confirm(r.Context(), itinID, req.ActorID)
	case models.ItineraryRejected:
		it, err = s.Scheduler.Reject(r.Context(), itinID, req.ActorID)
	case models.ItineraryInProgress:
		it, err = s.Scheduler.StartTrip(r.Context(), itinID, req.ActorID)
	case models.ItineraryCompleted:
		it, err = s.Scheduler.CompleteTrip(r.Context(), itinID, req.ActorID)
	case models.ItineraryCancelled:
		it, err = s.Scheduler.CancelTrip(r.Context(), itinID, req.ActorID, isAdmin(r))
	default:
		err = domainerr.Validation("unsupported target status %q", req.Status)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleScheduleNextLeg(w http.ResponseWriter, r *http.Request) {
	leg, err := s.Scheduler.ScheduleNextLeg(r.Context(), mux.Vars(r)["itinerary_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if leg == nil {
		writeJSON(w, http.StatusOK, map[string]any{"message": "no leg due", "ride": nil})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "next leg scheduled", "ride": leg})
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.DriverLocation
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		s.writeError(w, domainerr.Validation("invalid request body: %v", err))
		return
	}
	if d.DriverID == "" {
		s.writeError(w, domainerr.Validation("driver_id is required"))
		return
	}
	d.Available = true
	// publish to kafka if configured; the consumer maintains the index
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(d); err != nil {
			s.logger.Warn("kafka publish failed", "driver_id", d.DriverID, "error", err)
		}
	}
	if err := s.Drivers.UpsertDriver(r.Context(), d); err != nil {
		s.writeError(w, err)
		return
	}
	observability.LocationUpdates.Inc()
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

// isAdmin trusts a gateway-provided role header; real authentication lives
// upstream of this service.
func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-User-Role") == "admin"
}

func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
