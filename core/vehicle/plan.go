package vehicle

import (
	"context"
	"fmt"

	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/route"
)

// solverPlan builds plans through the external VRP solver. The request
// carries the vehicle plus a zero-capacity phantom vehicle because the
// solver refuses single-vehicle problems; the phantom cannot take work so
// all placed shipments land on the real vehicle.
func solverPlan(solver route.Solver) PlanBuilder {
	return func(ctx context.Context, v *Vehicle, queue []*model.Booking) ([]model.Instruction, error) {
		if len(queue) == 0 {
			return nil, nil
		}
		if len(queue) > route.MaxShipments {
			return nil, fmt.Errorf("vehicle %s: %w (%d queued)", v.id, route.ErrTooManyShipments, len(queue))
		}

		v.mu.Lock()
		start := v.position
		capacity := v.Capacity() - len(v.cargo)
		v.mu.Unlock()
		if capacity < 1 {
			capacity = 1
		}

		req := route.SolveRequest{
			Vehicles: []route.SolverVehicle{
				{ID: 0, Capacity: capacity, Start: start},
				{ID: 1, Capacity: 0, Start: start},
			},
		}
		for i, b := range queue {
			req.Shipments = append(req.Shipments, route.Shipment{
				ID:             i,
				Amount:         1,
				Pickup:         b.Pickup.Position,
				PickupWindow:   windowFrom(b.Pickup),
				Delivery:       b.Destination.Position,
				DeliveryWindow: windowFrom(b.Destination),
			})
		}

		resp, err := solver.Solve(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Unassigned) > 0 {
			v.log.Warnf("%s plan left %d bookings unassigned", v.id, len(resp.Unassigned))
		}

		var plan []model.Instruction
		for _, r := range resp.Routes {
			if r.VehicleID != 0 {
				continue
			}
			for _, step := range r.Steps {
				in := model.Instruction{
					ArrivalMs:   step.Arrival * 1000,
					DepartureMs: step.Departure * 1000,
				}
				switch step.Type {
				case route.StepStart:
					in.Action = model.ActionStart
				case route.StepPickup:
					in.Action = model.ActionPickup
				case route.StepDelivery:
					in.Action = model.ActionDelivery
				default:
					continue
				}
				if in.Action != model.ActionStart {
					if step.ShipmentID < 0 || step.ShipmentID >= len(queue) {
						return nil, fmt.Errorf("vehicle %s: solver referenced unknown shipment %d", v.id, step.ShipmentID)
					}
					in.Booking = queue[step.ShipmentID]
				}
				plan = append(plan, in)
			}
		}
		return plan, nil
	}
}

// windowFrom converts a stop's logical millisecond window to the solver's
// second-precision window. Unconstrained stops yield nil.
func windowFrom(s model.Stop) *[2]int64 {
	if s.ArrivalMs <= 0 && s.DepartureMs <= 0 {
		return nil
	}
	var w [2]int64
	if s.ArrivalMs > 0 {
		w[0] = s.ArrivalMs / 1000
	}
	if s.DepartureMs > 0 {
		w[1] = s.DepartureMs / 1000
	} else {
		// Open-ended departure: give the solver a generous five-hour span.
		w[1] = w[0] + 5*3600
	}
	return &w
}
