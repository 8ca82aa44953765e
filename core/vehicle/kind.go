package vehicle

import (
	"context"

	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/route"
)

// Kind selects the behaviour profile of a vehicle.
type Kind string

const (
	KindCar          Kind = "car"
	KindTaxi         Kind = "taxi"
	KindBus          Kind = "bus"
	KindTruck        Kind = "truck"
	KindRecycleTruck Kind = "recycleTruck"
)

// PlanBuilder turns a vehicle's queued bookings into an ordered plan.
type PlanBuilder func(ctx context.Context, v *Vehicle, queue []*model.Booking) ([]model.Instruction, error)

// Strategy is the per-kind behaviour injected into the vehicle aggregate.
type Strategy struct {
	// CanHandle decides whether a booking fits this vehicle. Caller holds
	// the vehicle mutex.
	CanHandle func(v *Vehicle, b *model.Booking) bool
	// BuildPlan orders the queue; nil falls back to FIFO pairing.
	BuildPlan PlanBuilder
	// WaitAtPickup makes the vehicle respect the pickup departure window.
	WaitAtPickup bool
	// HonorArrival makes the vehicle respect solver arrival stamps.
	HonorArrival bool
	// ReturnsToHub sends the vehicle back to its origin when a plan drains.
	ReturnsToHub bool
}

type defaults struct {
	idPrefix          string
	weight            float64
	parcelCapacity    int
	passengerCapacity int
	costPerHour       float64
	co2PerKmKg        float64
}

var kindDefaults = map[Kind]defaults{
	KindCar: {
		idPrefix:       "v",
		weight:         1500,
		parcelCapacity: 4,
		costPerHour:    250,
		co2PerKmKg:     0.013 / 1000,
	},
	KindTaxi: {
		idPrefix:          "t",
		weight:            1000,
		passengerCapacity: 4,
		costPerHour:       250,
		co2PerKmKg:        0.1201,
	},
	KindBus: {
		idPrefix:          "bus",
		weight:            12000,
		passengerCapacity: 50,
		costPerHour:       250,
		co2PerKmKg:        0.1201,
	},
	KindTruck: {
		idPrefix:       "tr",
		weight:         10000,
		parcelCapacity: 250,
		costPerHour:    250,
		co2PerKmKg:     0.1201,
	},
	KindRecycleTruck: {
		idPrefix:       "rt",
		weight:         10000,
		parcelCapacity: 500,
		costPerHour:    250,
		co2PerKmKg:     0.1201,
	},
}

func applyDefaults(cfg *Config, d defaults) {
	if cfg.Weight == 0 {
		cfg.Weight = d.weight
	}
	if cfg.ParcelCapacity == 0 {
		cfg.ParcelCapacity = d.parcelCapacity
	}
	if cfg.PassengerCapacity == 0 {
		cfg.PassengerCapacity = d.passengerCapacity
	}
	if cfg.CostPerHour == 0 {
		cfg.CostPerHour = d.costPerHour
	}
	if cfg.CO2PerKmKg == 0 {
		cfg.CO2PerKmKg = d.co2PerKmKg
	}
}

func strategyFor(kind Kind, solver route.Solver) Strategy {
	var builder PlanBuilder
	if solver != nil {
		builder = solverPlan(solver)
	}
	switch kind {
	case KindTaxi, KindBus:
		return Strategy{
			CanHandle:    canHandlePassenger,
			BuildPlan:    builder,
			HonorArrival: true,
		}
	case KindTruck:
		return Strategy{
			CanHandle:    canHandleParcelOf(model.BookingParcel),
			BuildPlan:    builder,
			WaitAtPickup: true,
			ReturnsToHub: true,
		}
	case KindRecycleTruck:
		return Strategy{
			CanHandle:    canHandleParcelOf(model.BookingRecycle),
			BuildPlan:    builder,
			WaitAtPickup: true,
			ReturnsToHub: true,
		}
	default:
		return Strategy{
			CanHandle: canHandleParcelOf(model.BookingParcel),
			BuildPlan: builder,
		}
	}
}

// canHandleParcelOf accepts one cargo booking type while the vehicle still
// has room, counting loaded, queued and the active booking. At full
// capacity the answer is false.
func canHandleParcelOf(typ model.BookingType) func(v *Vehicle, b *model.Booking) bool {
	return func(v *Vehicle, b *model.Booking) bool {
		if b.Type != typ {
			return false
		}
		return v.loadLocked() < v.parcelCapacity
	}
}

// canHandlePassenger applies the same load rule against the seat count. A
// rider without an attached passenger profile still occupies a seat.
func canHandlePassenger(v *Vehicle, b *model.Booking) bool {
	if b.Type != model.BookingPassenger {
		return false
	}
	return v.loadLocked() < v.passengerCapacity
}

// fifoPlan pairs each queued booking's pickup with its delivery in arrival
// order. Used when no solver is wired.
func fifoPlan(_ context.Context, _ *Vehicle, queue []*model.Booking) ([]model.Instruction, error) {
	plan := make([]model.Instruction, 0, 2*len(queue))
	for _, b := range queue {
		plan = append(plan,
			model.Instruction{Action: model.ActionPickup, Booking: b},
			model.Instruction{Action: model.ActionDelivery, Booking: b},
		)
	}
	return plan, nil
}
