// Package route defines the contracts of the external collaborators the
// simulation core depends on: route geometry lookup, batch VRP solving and
// reverse geocoding. Implementations live under infra/.
package route

import (
	"context"
	"errors"

	"github.com/swedishdeveloper/digital-twin/core/geo"
)

// Service resolves road geometry and travel times between positions.
type Service interface {
	// Route returns a timed polyline from origin to destination.
	Route(ctx context.Context, origin, destination geo.Position) (*geo.Route, error)
	// Nearest snaps a position to the road network. A nil result with nil
	// error means no snap was found.
	Nearest(ctx context.Context, position geo.Position) (*geo.Position, error)
}

// MaxShipments and MaxVehicles cap a single solver call; larger batches
// must be partitioned by the caller before solving. MinVehicles is the
// solver's floor: single-vehicle requests must be padded by the caller.
const (
	MaxShipments = 200
	MaxVehicles  = 200
	MinVehicles  = 2
)

var (
	// ErrTooManyShipments is returned when a solve request exceeds MaxShipments.
	ErrTooManyShipments = errors.New("too many shipments to plan")
	// ErrTooManyVehicles is returned when a solve request exceeds MaxVehicles.
	ErrTooManyVehicles = errors.New("too many vehicles to plan")
	// ErrNoVehicles is returned when a solve request carries no vehicles.
	ErrNoVehicles = errors.New("need at least one vehicle to plan")
	// ErrTooFewVehicles is returned when a solve request carries fewer than
	// MinVehicles vehicles.
	ErrTooFewVehicles = errors.New("need at least two vehicles to plan")
)

// Shipment is one pickup/delivery pair of a solve request. Windows are Unix
// seconds; nil means unconstrained.
type Shipment struct {
	ID             int
	Amount         int
	Pickup         geo.Position
	PickupWindow   *[2]int64
	Delivery       geo.Position
	DeliveryWindow *[2]int64
}

// SolverVehicle describes a vehicle's remaining capacity and location in a
// solve request.
type SolverVehicle struct {
	ID         int
	Capacity   int
	Start      geo.Position
	End        *geo.Position
	TimeWindow *[2]int64
}

// SolveRequest is a batch handed to the VRP solver.
type SolveRequest struct {
	Shipments []Shipment
	Vehicles  []SolverVehicle
}

// Validate enforces the solver batch ceilings and the vehicle floor.
func (r SolveRequest) Validate() error {
	if len(r.Shipments) > MaxShipments {
		return ErrTooManyShipments
	}
	if len(r.Vehicles) > MaxVehicles {
		return ErrTooManyVehicles
	}
	if len(r.Vehicles) == 0 {
		return ErrNoVehicles
	}
	if len(r.Vehicles) < MinVehicles {
		return ErrTooFewVehicles
	}
	return nil
}

// StepType classifies a step of a solved route.
type StepType string

const (
	StepStart    StepType = "start"
	StepPickup   StepType = "pickup"
	StepDelivery StepType = "delivery"
	StepEnd      StepType = "end"
)

// Step is one stop of a solved route. Arrival and Departure are Unix
// seconds in solver time.
type Step struct {
	Type       StepType
	ShipmentID int
	Arrival    int64
	Departure  int64
}

// SolvedRoute is the ordered plan for one vehicle of the request.
type SolvedRoute struct {
	VehicleID int
	Steps     []Step
}

// SolveResponse is the solver's answer: one route per vehicle that received
// work, plus the shipments it could not place.
type SolveResponse struct {
	Routes     []SolvedRoute
	Unassigned []int
}

// Solver computes near-optimal routes for a batch of shipments and
// vehicles.
type Solver interface {
	Solve(ctx context.Context, req SolveRequest) (*SolveResponse, error)
}

// Place is a reverse-geocoded location.
type Place struct {
	Name       string
	PostalCode string
	Position   geo.Position
}

// Geocoder resolves coordinates to named places.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Place, error)
}
