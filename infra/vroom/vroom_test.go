package vroom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/route"
)

func solveRequest() route.SolveRequest {
	return route.SolveRequest{
		Shipments: []route.Shipment{
			{
				ID:       0,
				Amount:   1,
				Pickup:   geo.Position{Lon: 16.0950, Lat: 61.8300},
				Delivery: geo.Position{Lon: 16.1200, Lat: 61.8450},
			},
		},
		Vehicles: []route.SolverVehicle{
			{ID: 0, Capacity: 4, Start: geo.Position{Lon: 16.0933, Lat: 61.8294}},
			{ID: 1, Capacity: 0, Start: geo.Position{Lon: 16.0933, Lat: 61.8294}},
		},
	}
}

const solveBody = `{
  "code": 0,
  "routes": [
    {
      "vehicle": 0,
      "steps": [
        {"type": "start", "arrival": 1000, "departure": 1000},
        {"type": "pickup", "id": 0, "arrival": 1100, "departure": 1110},
        {"type": "delivery", "id": 0, "arrival": 1300, "departure": 1300},
        {"type": "end", "arrival": 1400, "departure": 1400}
      ]
    }
  ],
  "unassigned": []
}`

func TestSolveDecodesRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body vroomRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.Shipments) != 1 || len(body.Vehicles) != 2 {
			t.Errorf("request carried %d shipments, %d vehicles", len(body.Shipments), len(body.Vehicles))
		}
		if body.Vehicles[1].Capacity[0] != 0 {
			t.Errorf("second vehicle capacity = %v", body.Vehicles[1].Capacity)
		}
		_, _ = w.Write([]byte(solveBody))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Solve(context.Background(), solveRequest())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(resp.Routes) != 1 {
		t.Fatalf("routes = %d", len(resp.Routes))
	}
	steps := resp.Routes[0].Steps
	if len(steps) != 4 {
		t.Fatalf("steps = %d", len(steps))
	}
	if steps[1].Type != route.StepPickup || steps[1].ShipmentID != 0 || steps[1].Arrival != 1100 {
		t.Fatalf("pickup step = %+v", steps[1])
	}
	if steps[2].Type != route.StepDelivery || steps[2].Departure != 1300 {
		t.Fatalf("delivery step = %+v", steps[2])
	}
}

func TestSolveCachesIdenticalRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(solveBody))
	}))
	defer srv.Close()

	c := New(srv.URL)
	for i := 0; i < 3; i++ {
		if _, err := c.Solve(context.Background(), solveRequest()); err != nil {
			t.Fatalf("solve %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 network call, got %d", n)
	}
}

func TestSolveEnforcesBatchCeilings(t *testing.T) {
	c := New("http://unused")

	req := solveRequest()
	for i := 1; i <= route.MaxShipments; i++ {
		req.Shipments = append(req.Shipments, route.Shipment{ID: i, Amount: 1})
	}
	if _, err := c.Solve(context.Background(), req); !errors.Is(err, route.ErrTooManyShipments) {
		t.Fatalf("expected ErrTooManyShipments, got %v", err)
	}

	req = solveRequest()
	req.Vehicles = nil
	if _, err := c.Solve(context.Background(), req); !errors.Is(err, route.ErrNoVehicles) {
		t.Fatalf("expected ErrNoVehicles, got %v", err)
	}
}

func TestSolveRetriesFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(solveBody))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Solve(context.Background(), solveRequest()); err != nil {
		t.Fatalf("solve: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}

func TestSolveSolverErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 3, "routes": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Solve(context.Background(), solveRequest()); err == nil {
		t.Fatal("expected error for solver code != 0")
	}
}
