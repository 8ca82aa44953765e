package dispatch

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/vehicle"
	"github.com/swedishdeveloper/digital-twin/core/virtualtime"
)

type lineRouter struct{}

func (lineRouter) Route(_ context.Context, origin, destination geo.Position) (*geo.Route, error) {
	d := geo.Haversine(origin, destination)
	return &geo.Route{
		Coordinates: []geo.Position{origin, destination},
		Durations:   []float64{d / 15},
		Distances:   []float64{d},
		Duration:    d / 15,
	}, nil
}

func (lineRouter) Nearest(_ context.Context, position geo.Position) (*geo.Position, error) {
	return &position, nil
}

func testVehicle(t *testing.T, clock *virtualtime.Clock, id string, pos geo.Position) *vehicle.Vehicle {
	t.Helper()
	v, err := vehicle.New(vehicle.Config{
		ID:       id,
		Kind:     vehicle.KindCar,
		Position: pos,
		Clock:    clock,
		Router:   lineRouter{},
		Log:      logger.NopLogger{},
	})
	if err != nil {
		t.Fatalf("vehicle %s: %v", id, err)
	}
	t.Cleanup(v.Dispose)
	return v
}

func testParcel(clock *virtualtime.Clock, pickup, drop geo.Position) *model.Booking {
	return model.NewBooking(model.BookingParams{
		Type:        model.BookingParcel,
		Pickup:      model.Stop{Position: pickup},
		Destination: model.Stop{Position: drop},
		Clock:       clock,
	})
}

func waitAssigned(t *testing.T, b *model.Booking, timeout time.Duration) {
	t.Helper()
	ch := b.AssignedEvents().Subscribe()
	defer b.AssignedEvents().Unsubscribe(ch)
	if b.Status() >= model.StatusAssigned {
		return
	}
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("booking %s never assigned", b.ID)
	}
}

func TestDirectMatchingPicksNearestVehicle(t *testing.T) {
	clock := virtualtime.NewAt(0, time.Date(2025, 6, 2, 6, 48, 0, 0, time.UTC))
	defer clock.Stop()

	south := geo.Position{Lon: 16.0900, Lat: 61.8200}
	north := geo.Position{Lon: 16.0900, Lat: 61.9200}
	vSouth := testVehicle(t, clock, "v-south", south)
	vNorth := testVehicle(t, clock, "v-north", north)
	vehicles := []*vehicle.Vehicle{vSouth, vNorth}

	engine := New(Config{
		Vehicles:    func() []*vehicle.Vehicle { return vehicles },
		Log:         logger.NopLogger{},
		BatchWindow: 50 * time.Millisecond,
	})
	engine.Start()
	defer engine.Stop()

	bSouth := testParcel(clock, geo.Position{Lon: 16.0910, Lat: 61.8210}, geo.Position{Lon: 16.1000, Lat: 61.8300})
	defer bSouth.Close()
	bNorth := testParcel(clock, geo.Position{Lon: 16.0910, Lat: 61.9210}, geo.Position{Lon: 16.1000, Lat: 61.9300})
	defer bNorth.Close()

	engine.Dispatch(bSouth)
	engine.Dispatch(bNorth)

	waitAssigned(t, bSouth, 2*time.Second)
	waitAssigned(t, bNorth, 2*time.Second)

	if got := bSouth.VehicleID(); got != "v-south" {
		t.Errorf("south booking went to %s", got)
	}
	if got := bNorth.VehicleID(); got != "v-north" {
		t.Errorf("north booking went to %s", got)
	}
}

func TestClusteredMatchingAssignsAllBookings(t *testing.T) {
	clock := virtualtime.New(math.Inf(1))
	defer clock.Stop()

	south := geo.Position{Lon: 16.0900, Lat: 61.8200}
	north := geo.Position{Lon: 16.0900, Lat: 61.9200}
	vehicles := []*vehicle.Vehicle{
		testVehicle(t, clock, "v-south", south),
		testVehicle(t, clock, "v-north", north),
	}
	engine := New(Config{
		Vehicles:    func() []*vehicle.Vehicle { return vehicles },
		Log:         logger.NopLogger{},
		BatchWindow: 50 * time.Millisecond,
	})
	engine.Start()
	defer engine.Stop()

	var bookings []*model.Booking
	spots := []geo.Position{
		{Lon: 16.0910, Lat: 61.8210},
		{Lon: 16.0920, Lat: 61.8220},
		{Lon: 16.0910, Lat: 61.9210},
		{Lon: 16.0920, Lat: 61.9220},
		{Lon: 16.0930, Lat: 61.9230},
	}
	for _, p := range spots {
		b := testParcel(clock, p, geo.Position{Lon: p.Lon + 0.01, Lat: p.Lat + 0.005})
		defer b.Close()
		bookings = append(bookings, b)
		engine.Dispatch(b)
	}

	for _, b := range bookings {
		waitAssigned(t, b, 5*time.Second)
		if b.VehicleID() == "" {
			t.Errorf("booking %s unassigned", b.ID)
		}
	}
}

func TestAlreadyAssignedBookingsAreSkipped(t *testing.T) {
	clock := virtualtime.NewAt(0, time.Date(2025, 6, 2, 6, 48, 0, 0, time.UTC))
	defer clock.Stop()

	v := testVehicle(t, clock, "v-1", geo.Position{Lon: 16.0900, Lat: 61.8200})
	engine := New(Config{
		Vehicles:    func() []*vehicle.Vehicle { return []*vehicle.Vehicle{v} },
		Log:         logger.NopLogger{},
		BatchWindow: 50 * time.Millisecond,
	})
	engine.Start()
	defer engine.Stop()

	b := testParcel(clock, geo.Position{Lon: 16.0910, Lat: 61.8210}, geo.Position{Lon: 16.1000, Lat: 61.8300})
	defer b.Close()
	if err := b.Assign("elsewhere"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	engine.Dispatch(b)

	time.Sleep(200 * time.Millisecond)
	if got := b.VehicleID(); got != "elsewhere" {
		t.Fatalf("engine touched a foreign booking: owner %s", got)
	}
	if v.QueueLen() != 0 || v.CargoLen() != 0 {
		t.Error("vehicle received a foreign booking")
	}
}
