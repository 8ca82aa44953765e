package osrm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/swedishdeveloper/digital-twin/core/geo"
)

const routeBody = `{
  "code": "Ok",
  "routes": [
    {
      "duration": 120,
      "distance": 1800,
      "geometry": {"coordinates": [[16.0933, 61.8294], [16.1000, 61.8350], [16.1200, 61.8450]]},
      "legs": [{"annotation": {"duration": [60, 60], "distance": [900, 900]}}]
    },
    {
      "duration": 90,
      "distance": 2000,
      "geometry": {"coordinates": [[16.0933, 61.8294], [16.1200, 61.8450]]},
      "legs": [{"annotation": {"duration": [90], "distance": [2000]}}]
    }
  ]
}`

func TestRoutePicksFastestAlternative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/route/v1/driving/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("geometries") != "geojson" {
			t.Errorf("geometries = %s", q.Get("geometries"))
		}
		if q.Get("annotations") != "true" {
			t.Errorf("annotations = %s", q.Get("annotations"))
		}
		_, _ = w.Write([]byte(routeBody))
	}))
	defer srv.Close()

	c := New(srv.URL)
	r, err := c.Route(context.Background(),
		geo.Position{Lon: 16.0933, Lat: 61.8294},
		geo.Position{Lon: 16.1200, Lat: 61.8450})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	// The 90s alternative beats the 120s one.
	if r.Duration != 90 {
		t.Fatalf("duration = %f, want 90", r.Duration)
	}
	if len(r.Coordinates) != 2 {
		t.Fatalf("coordinates = %d", len(r.Coordinates))
	}
	if len(r.Durations) != 1 || r.Durations[0] != 90 {
		t.Fatalf("durations = %v", r.Durations)
	}
	if len(r.Distances) != 1 || r.Distances[0] != 2000 {
		t.Fatalf("distances = %v", r.Distances)
	}
}

func TestRouteErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": "NoRoute", "routes": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Route(context.Background(), geo.Position{Lon: 16, Lat: 61}, geo.Position{Lon: 17, Lat: 62}); err == nil {
		t.Fatal("expected error for NoRoute")
	}
}

func TestRouteHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Route(context.Background(), geo.Position{Lon: 16, Lat: 61}, geo.Position{Lon: 17, Lat: 62}); err == nil {
		t.Fatal("expected error for bad status")
	}
}

func TestRouteThrottlesConcurrentCalls(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		_, _ = w.Write([]byte(routeBody))
	}))
	defer srv.Close()

	c := New(srv.URL)
	var wg sync.WaitGroup
	for i := 0; i < 3*maxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Route(context.Background(),
				geo.Position{Lon: 16.0933, Lat: 61.8294},
				geo.Position{Lon: 16.1200, Lat: 61.8450})
			if err != nil {
				t.Errorf("route: %v", err)
			}
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt32(&peak); p > maxConcurrent {
		t.Fatalf("peak concurrency %d, limit %d", p, maxConcurrent)
	}
}

func TestNearestSnapsToRoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/nearest/v1/driving/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"code": "Ok", "waypoints": [{"location": [16.0940, 61.8290]}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	snapped, err := c.Nearest(context.Background(), geo.Position{Lon: 16.0933, Lat: 61.8294})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if snapped == nil {
		t.Fatal("expected a snapped position")
	}
	if snapped.Lon != 16.0940 || snapped.Lat != 61.8290 {
		t.Fatalf("snapped to %v", *snapped)
	}
}

func TestNearestNoSnap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": "Ok", "waypoints": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	snapped, err := c.Nearest(context.Background(), geo.Position{Lon: 16, Lat: 61})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if snapped != nil {
		t.Fatalf("expected nil, got %v", *snapped)
	}
}
