// Package fleet groups vehicles under an operator and routes bookings from
// municipalities to the fleet able to serve them.
package fleet

import (
	"fmt"

	"github.com/swedishdeveloper/digital-twin/core/dispatch"
	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/route"
	"github.com/swedishdeveloper/digital-twin/core/vehicle"
	"github.com/swedishdeveloper/digital-twin/core/virtualtime"
)

// Config assembles a Fleet. Vehicles are created at the hub, one batch per
// kind.
type Config struct {
	Name string
	Hub  geo.Position
	// BookingTypes lists the demand this fleet accepts.
	BookingTypes []model.BookingType
	// VehicleCounts is the number of vehicles to create per kind.
	VehicleCounts map[vehicle.Kind]int

	Clock  *virtualtime.Clock
	Router route.Service
	Solver route.Solver
	Log    logger.Logger

	// Dispatch overrides the engine buffering; zero values keep defaults.
	Dispatch dispatch.Config
}

// Fleet is an operator running vehicles out of a hub.
type Fleet struct {
	name     string
	hub      geo.Position
	types    map[model.BookingType]bool
	vehicles []*vehicle.Vehicle
	engine   *dispatch.Engine
	log      logger.Logger
}

// New creates the fleet, its vehicles and its dispatch engine. The engine
// starts immediately.
func New(cfg Config) (*Fleet, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("fleet: name required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.NopLogger{}
	}
	f := &Fleet{
		name:  cfg.Name,
		hub:   cfg.Hub,
		types: make(map[model.BookingType]bool, len(cfg.BookingTypes)),
		log:   log,
	}
	for _, t := range cfg.BookingTypes {
		f.types[t] = true
	}
	for kind, count := range cfg.VehicleCounts {
		for i := 0; i < count; i++ {
			v, err := vehicle.New(vehicle.Config{
				Kind:     kind,
				Fleet:    cfg.Name,
				Position: cfg.Hub,
				Clock:    cfg.Clock,
				Router:   cfg.Router,
				Solver:   cfg.Solver,
				Log:      log,
			})
			if err != nil {
				f.Stop()
				return nil, fmt.Errorf("fleet %s: %w", cfg.Name, err)
			}
			f.vehicles = append(f.vehicles, v)
		}
	}

	engineCfg := cfg.Dispatch
	engineCfg.Vehicles = f.Vehicles
	if engineCfg.Log == nil {
		engineCfg.Log = log
	}
	f.engine = dispatch.New(engineCfg)
	f.engine.Start()
	return f, nil
}

// Name returns the fleet name.
func (f *Fleet) Name() string { return f.name }

// Hub returns the fleet's home position.
func (f *Fleet) Hub() geo.Position { return f.hub }

// Vehicles returns the fleet's vehicles.
func (f *Fleet) Vehicles() []*vehicle.Vehicle {
	return append([]*vehicle.Vehicle(nil), f.vehicles...)
}

// CanHandle reports whether any vehicle in the pool can take the booking
// right now. The type set is a fast reject for demand the operator never
// serves; a fleet whose vehicles are all full answers false so the
// municipality tries the next one.
func (f *Fleet) CanHandle(b *model.Booking) bool {
	if b == nil || !f.types[b.Type] {
		return false
	}
	for _, v := range f.vehicles {
		if v.CanHandleBooking(b) {
			return true
		}
	}
	return false
}

// HandleBooking accepts the booking and feeds it to the dispatch engine.
func (f *Fleet) HandleBooking(b *model.Booking) {
	b.SetFleet(f.name)
	f.engine.Dispatch(b)
}

// HandleBookingWith hands the booking straight to the chosen vehicle,
// bypassing the engine. Used for manual dispatch from scripted scenarios
// and operator tooling.
func (f *Fleet) HandleBookingWith(b *model.Booking, v *vehicle.Vehicle) error {
	if b == nil || v == nil {
		return fmt.Errorf("fleet %s: manual dispatch needs a booking and a vehicle", f.name)
	}
	b.SetFleet(f.name)
	return v.HandleBooking(b)
}

// Stop halts dispatching and disposes all vehicles.
func (f *Fleet) Stop() {
	if f.engine != nil {
		f.engine.Stop()
	}
	for _, v := range f.vehicles {
		v.Dispose()
	}
}
