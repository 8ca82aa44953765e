package fleet

import (
	"fmt"

	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/vehicle"
)

// Municipality is the geographic root of the simulation. It owns fleets
// and routes each incoming booking to the first fleet declaring the
// booking's type; fleet declaration order is the priority order.
type Municipality struct {
	name   string
	center geo.Position
	fleets []*Fleet
	log    logger.Logger
}

// NewMunicipality creates a municipality over the given fleets.
func NewMunicipality(name string, center geo.Position, fleets []*Fleet, log logger.Logger) *Municipality {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Municipality{name: name, center: center, fleets: fleets, log: log}
}

// Name returns the municipality name.
func (m *Municipality) Name() string { return m.name }

// Center returns the municipality's reference position.
func (m *Municipality) Center() geo.Position { return m.center }

// Fleets returns the owned fleets in priority order.
func (m *Municipality) Fleets() []*Fleet {
	return append([]*Fleet(nil), m.fleets...)
}

// Vehicles returns all vehicles across all fleets.
func (m *Municipality) Vehicles() []*vehicle.Vehicle {
	var out []*vehicle.Vehicle
	for _, f := range m.fleets {
		out = append(out, f.vehicles...)
	}
	return out
}

// HandleBooking routes the booking to the first capable fleet. A booking no
// fleet accepts is an error; it stays unhandled.
func (m *Municipality) HandleBooking(b *model.Booking) error {
	for _, f := range m.fleets {
		if f.CanHandle(b) {
			f.HandleBooking(b)
			return nil
		}
	}
	m.log.Warnf("%s: no fleet accepts booking %s of type %s", m.name, b.ID, b.Type)
	return fmt.Errorf("municipality %s: no fleet for booking type %s", m.name, b.Type)
}

// Stop halts all fleets.
func (m *Municipality) Stop() {
	for _, f := range m.fleets {
		f.Stop()
	}
}
