package scenarios

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/swedishdeveloper/digital-twin/core/dispatch"
	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/vehicle"
	"github.com/swedishdeveloper/digital-twin/core/virtualtime"
)

// scenarioTimeout caps a single scenario run in wall time.
const scenarioTimeout = 10 * time.Second

// lineRouter serves straight-line routes at a fixed 15 m/s. Under the
// accelerated clock vehicles mostly teleport; the router exists for the
// occasional long leg.
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

// RunScenario plays a scenario to completion and checks its expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	clock := virtualtime.New(math.Inf(1))
	defer clock.Stop()

	var vehicles []*vehicle.Vehicle
	for _, def := range sc.Vehicles {
		v, err := vehicle.New(vehicle.Config{
			ID:             def.ID,
			Kind:           parseKind(def.Kind),
			Position:       def.Position.ToModel(),
			ParcelCapacity: def.Capacity,
			Clock:          clock,
			Router:         lineRouter{},
			Log:            logger.NopLogger{},
		})
		if err != nil {
			t.Fatalf("vehicle %s: %v", def.ID, err)
		}
		defer v.Dispose()
		vehicles = append(vehicles, v)
	}

	engine := dispatch.New(dispatch.Config{
		Vehicles:    func() []*vehicle.Vehicle { return vehicles },
		Log:         logger.NopLogger{},
		BatchWindow: 50 * time.Millisecond,
	})
	engine.Start()
	defer engine.Stop()

	var bookings []*model.Booking
	deliveredC := make(chan string, len(sc.Bookings))
	for _, def := range sc.Bookings {
		b := model.NewBooking(def.Params(clock))
		ch := b.DeliveredEvents().Subscribe()
		go func(id string) {
			for range ch {
				deliveredC <- id
			}
		}(b.ID)
		bookings = append(bookings, b)
		engine.Dispatch(b)
	}

	deadline := time.After(scenarioTimeout)
	delivered := 0
	for delivered < sc.Expected.Delivered {
		select {
		case <-deliveredC:
			delivered++
		case <-deadline:
			t.Fatalf("scenario %s: %d of %d bookings delivered before timeout",
				sc.Name, delivered, sc.Expected.Delivered)
		}
	}

	for _, b := range bookings {
		if b.Status() == model.StatusDelivered && b.VehicleID() == "" {
			t.Errorf("scenario %s: booking %s delivered without an owner", sc.Name, b.ID)
		}
	}
}
