package model

// PlanAction is the kind of step in a vehicle plan.
type PlanAction string

const (
	ActionStart    PlanAction = "start"
	ActionPickup   PlanAction = "pickup"
	ActionDelivery PlanAction = "delivery"
)

// Instruction is one ordered step of a vehicle plan, produced by the VRP
// solver from the vehicle's queue.
type Instruction struct {
	Action  PlanAction
	Booking *Booking
	// ArrivalMs and DepartureMs are logical Unix milliseconds suggested by
	// the solver; 0 means unconstrained.
	ArrivalMs   int64
	DepartureMs int64
}
