package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/voyago/internal/config"
	"github.com/example/voyago/internal/models"
	"github.com/example/voyago/internal/observability"
)

func newTestServer() *Server {
	return NewServer(config.ServerConfig{GeofenceRadiusKm: 50, AvgSpeedKmh: 40, DriverShare: 0.80, LogLevel: "error"})
}

func TestDriverLocationIngest(t *testing.T) {
	s := newTestServer()
	before := testutil.ToFloat64(observability.LocationUpdates)

	body := `{"driver_id":"d1","loc":{"lat":12.97,"lng":77.59},"city":"Bangalore","vehicle_class":"economy"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/driver/locations", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	d, err := s.Drivers.GetDriver(context.Background(), "d1")
	if err != nil {
		t.Fatalf("driver not stored: %v", err)
	}
	if !d.Available || d.City != "Bangalore" || d.VehicleClass != models.ClassEconomy {
		t.Fatalf("unexpected driver state: %+v", d)
	}
	if got := testutil.ToFloat64(observability.LocationUpdates) - before; got != 1 {
		t.Fatalf("expected one location update counted, got %f", got)
	}
}

func TestDriverLocationIngestRejectsMissingID(t *testing.T) {
	s := newTestServer()
	before := testutil.ToFloat64(observability.LocationUpdates)

	req := httptest.NewRequest(http.MethodPost, "/internal/driver/locations", strings.NewReader(`{"city":"Goa"}`))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := testutil.ToFloat64(observability.LocationUpdates) - before; got != 0 {
		t.Fatalf("rejected report must not be counted, got %f", got)
	}
}
