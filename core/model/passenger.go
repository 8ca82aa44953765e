package model

import (
	"sync"

	"github.com/swedishdeveloper/digital-twin/core/geo"
)

// Passenger is a citizen riding along with a passenger booking. It receives
// a share of the movement accounting of the carrying vehicle.
type Passenger struct {
	ID   string
	Name string

	mu       sync.Mutex
	position geo.Position
	distance float64
	co2      float64
	cost     float64
	movedMs  int64
}

// NewPassenger creates a passenger at the given home position.
func NewPassenger(name string, home geo.Position) *Passenger {
	return &Passenger{ID: NewID("p"), Name: name, position: home}
}

// Moved accumulates the passenger's share of a vehicle movement.
// elapsedMs is the logical time spent on board since pickup.
func (p *Passenger) Moved(position geo.Position, metersMoved, co2, cost float64, elapsedMs int64) {
	p.mu.Lock()
	p.position = position
	p.distance += metersMoved
	p.co2 += co2
	p.cost += cost
	p.movedMs = elapsedMs
	p.mu.Unlock()
}

// Position returns the passenger's last known position.
func (p *Passenger) Position() geo.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Distance returns the accumulated travelled distance in meters.
func (p *Passenger) Distance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.distance
}

// CO2 returns the accumulated emission share in kg.
func (p *Passenger) CO2() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.co2
}

// Cost returns the accumulated cost share.
func (p *Passenger) Cost() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cost
}
