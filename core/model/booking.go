// Package model holds the simulation entities shared across components:
// bookings, passengers and vehicle plans.
package model

import (
	"fmt"
	"sync"

	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/virtualtime"
	"github.com/swedishdeveloper/digital-twin/internal/eventbus"
)

// BookingType classifies the demand a booking represents.
type BookingType string

const (
	BookingParcel    BookingType = "parcel"
	BookingPassenger BookingType = "passenger"
	BookingRecycle   BookingType = "recycle"
)

// BookingStatus is the monotonic lifecycle state of a booking.
type BookingStatus int

const (
	StatusUnhandled BookingStatus = iota
	StatusQueued
	StatusAssigned
	StatusPickedUp
	StatusDelivered
)

func (s BookingStatus) String() string {
	switch s {
	case StatusUnhandled:
		return "unhandled"
	case StatusQueued:
		return "queued"
	case StatusAssigned:
		return "assigned"
	case StatusPickedUp:
		return "pickedUp"
	case StatusDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// Stop is a pickup or destination of a booking. Time windows are logical
// Unix milliseconds; 0 means unconstrained.
type Stop struct {
	Position    geo.Position
	Name        string
	DepartureMs int64
	ArrivalMs   int64
}

// BookingEvent is published on a booking's event buses at every status
// transition.
type BookingEvent struct {
	Booking *Booking
	Status  BookingStatus
	TimeMs  int64
}

// ErrReassigned signals an attempt to hand a booking to a second vehicle.
var ErrReassigned = fmt.Errorf("booking already owned by another vehicle")

// Booking is a transport request moving through the
// unhandled → queued → assigned → pickedUp → delivered lifecycle.
// Exactly one vehicle owns a booking once assigned, so transitions are
// serialized by that owner; the mutex only guards cross-actor reads.
type Booking struct {
	ID     string
	Type   BookingType
	Sender string

	Pickup      Stop
	Destination Stop
	Weight      float64
	Passenger   *Passenger

	clock *virtualtime.Clock

	mu          sync.Mutex
	status      BookingStatus
	vehicleID   string
	fleetName   string
	position    geo.Position
	distance    float64
	cost        float64
	co2         float64
	queuedMs    int64
	assignedMs  int64
	pickedUpMs  int64
	deliveredMs int64
	pickupPos   geo.Position

	queuedEvents    *eventbus.Bus[BookingEvent]
	assignedEvents  *eventbus.Bus[BookingEvent]
	pickedUpEvents  *eventbus.Bus[BookingEvent]
	deliveredEvents *eventbus.Bus[BookingEvent]
	statusEvents    *eventbus.Bus[BookingEvent]
}

// BookingParams configures NewBooking.
type BookingParams struct {
	ID          string
	Sender      string
	Type        BookingType
	Pickup      Stop
	Destination Stop
	Weight      float64
	Passenger   *Passenger
	Clock       *virtualtime.Clock
}

// NewBooking creates an unhandled booking. The clock is mandatory: every
// transition stamp derives from it.
func NewBooking(p BookingParams) *Booking {
	id := p.ID
	if id == "" {
		prefix := "b"
		if p.Sender != "" {
			prefix = sanitizeSender(p.Sender)
		}
		id = NewID(prefix)
	}
	typ := p.Type
	if typ == "" {
		typ = BookingParcel
	}
	return &Booking{
		ID:              id,
		Type:            typ,
		Sender:          p.Sender,
		Pickup:          p.Pickup,
		Destination:     p.Destination,
		Weight:          p.Weight,
		Passenger:       p.Passenger,
		clock:           p.Clock,
		status:          StatusUnhandled,
		position:        p.Pickup.Position,
		queuedEvents:    eventbus.New[BookingEvent](),
		assignedEvents:  eventbus.New[BookingEvent](),
		pickedUpEvents:  eventbus.New[BookingEvent](),
		deliveredEvents: eventbus.New[BookingEvent](),
		statusEvents:    eventbus.New[BookingEvent](),
	}
}

func sanitizeSender(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '&' || r == ' ' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// QueuedEvents returns the bus firing on the queued transition.
func (b *Booking) QueuedEvents() *eventbus.Bus[BookingEvent] { return b.queuedEvents }

// AssignedEvents returns the bus firing on the assigned transition.
func (b *Booking) AssignedEvents() *eventbus.Bus[BookingEvent] { return b.assignedEvents }

// PickedUpEvents returns the bus firing on the pickedUp transition.
func (b *Booking) PickedUpEvents() *eventbus.Bus[BookingEvent] { return b.pickedUpEvents }

// DeliveredEvents returns the bus firing on the delivered transition.
func (b *Booking) DeliveredEvents() *eventbus.Bus[BookingEvent] { return b.deliveredEvents }

// StatusEvents returns the merged bus firing on every transition in
// emission order.
func (b *Booking) StatusEvents() *eventbus.Bus[BookingEvent] { return b.statusEvents }

// Status returns the current lifecycle state.
func (b *Booking) Status() BookingStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// VehicleID returns the owning vehicle, or "" while unassigned.
func (b *Booking) VehicleID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vehicleID
}

// SetFleet records the fleet that accepted the booking.
func (b *Booking) SetFleet(name string) {
	b.mu.Lock()
	b.fleetName = name
	b.mu.Unlock()
}

// Fleet returns the accepting fleet name, or "".
func (b *Booking) Fleet() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fleetName
}

// Position returns the last known position of the booking.
func (b *Booking) Position() geo.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// Distance returns the accumulated transported distance in meters.
func (b *Booking) Distance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.distance
}

// Cost returns the accumulated transport cost.
func (b *Booking) Cost() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cost
}

// CO2 returns the accumulated emissions in kg.
func (b *Booking) CO2() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.co2
}

// Queued marks the booking as waiting in a vehicle's queue. Valid only
// from unhandled.
func (b *Booking) Queued(vehicleID string) error {
	b.mu.Lock()
	if b.status >= StatusQueued {
		b.mu.Unlock()
		return fmt.Errorf("booking %s: queued after %s", b.ID, b.status)
	}
	now := b.clock.Now()
	b.status = StatusQueued
	b.vehicleID = vehicleID
	b.queuedMs = now
	ev := BookingEvent{Booking: b, Status: StatusQueued, TimeMs: now}
	b.mu.Unlock()
	b.queuedEvents.Publish(ev)
	b.statusEvents.Publish(ev)
	return nil
}

// Assign hands ownership of the booking to a vehicle. Re-assigning to the
// same vehicle is a no-op keeping the original stamp; a different vehicle
// is rejected, there is no silent reassignment.
func (b *Booking) Assign(vehicleID string) error {
	b.mu.Lock()
	if b.vehicleID != "" && b.vehicleID != vehicleID {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s held by %s", ErrReassigned, b.ID, b.vehicleID)
	}
	if b.status >= StatusAssigned {
		b.mu.Unlock()
		return nil
	}
	now := b.clock.Now()
	b.status = StatusAssigned
	b.vehicleID = vehicleID
	if b.assignedMs == 0 {
		b.assignedMs = now
	}
	ev := BookingEvent{Booking: b, Status: StatusAssigned, TimeMs: now}
	b.mu.Unlock()
	b.assignedEvents.Publish(ev)
	b.statusEvents.Publish(ev)
	return nil
}

// PickedUp marks the booking as on board at the given position.
func (b *Booking) PickedUp(position geo.Position) error {
	b.mu.Lock()
	if b.status >= StatusPickedUp {
		b.mu.Unlock()
		return fmt.Errorf("booking %s: pickedUp after %s", b.ID, b.status)
	}
	now := b.clock.Now()
	b.status = StatusPickedUp
	b.pickedUpMs = now
	b.pickupPos = position
	b.position = position
	ev := BookingEvent{Booking: b, Status: StatusPickedUp, TimeMs: now}
	b.mu.Unlock()
	b.pickedUpEvents.Publish(ev)
	b.statusEvents.Publish(ev)
	return nil
}

// Delivered marks the booking as completed at the given position. The
// status is terminal.
func (b *Booking) Delivered(position geo.Position) error {
	b.mu.Lock()
	if b.status >= StatusDelivered {
		b.mu.Unlock()
		return fmt.Errorf("booking %s: delivered twice", b.ID)
	}
	now := b.clock.Now()
	b.status = StatusDelivered
	b.deliveredMs = now
	b.position = position
	ev := BookingEvent{Booking: b, Status: StatusDelivered, TimeMs: now}
	b.mu.Unlock()
	b.deliveredEvents.Publish(ev)
	b.statusEvents.Publish(ev)
	return nil
}

// Moved accumulates movement deltas while the booking is on board and
// forwards a share to an attached passenger.
func (b *Booking) Moved(position geo.Position, metersMoved, co2, cost float64) {
	b.mu.Lock()
	b.position = position
	b.distance += metersMoved
	b.cost += cost
	b.co2 += co2
	passenger := b.Passenger
	pickedUpMs := b.pickedUpMs
	b.mu.Unlock()
	if passenger != nil {
		passenger.Moved(position, metersMoved, co2, cost, b.clock.Now()-pickedUpMs)
	}
}

// QueuedAt returns the queued stamp in logical Unix ms, 0 if never queued.
func (b *Booking) QueuedAt() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queuedMs
}

// AssignedAt returns the assigned stamp in logical Unix ms.
func (b *Booking) AssignedAt() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.assignedMs
}

// PickedUpAt returns the pickedUp stamp in logical Unix ms.
func (b *Booking) PickedUpAt() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pickedUpMs
}

// DeliveredAt returns the delivered stamp in logical Unix ms.
func (b *Booking) DeliveredAt() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deliveredMs
}

// DeliveryTime returns delivered − (assigned ?? queued) in seconds, or 0
// while undelivered.
func (b *Booking) DeliveryTime() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deliveredMs == 0 {
		return 0
	}
	ref := b.assignedMs
	if ref == 0 {
		ref = b.queuedMs
	}
	return float64(b.deliveredMs-ref) / 1000
}

// Close shuts down all event buses. Called when a delivered booking is
// dropped at experiment teardown.
func (b *Booking) Close() {
	b.queuedEvents.Close()
	b.assignedEvents.Close()
	b.pickedUpEvents.Close()
	b.deliveredEvents.Close()
	b.statusEvents.Close()
}
