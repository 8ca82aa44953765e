// Package vehicle implements the simulated mobile agent serving bookings.
// A single aggregate covers all vehicle kinds; behaviour that differs per
// kind (capacity rules, plan building, pickup waiting) is injected as a
// Strategy rather than expressed through embedding.
package vehicle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/route"
	"github.com/swedishdeveloper/digital-twin/core/virtualtime"
	"github.com/swedishdeveloper/digital-twin/internal/eventbus"
)

// Status is the movement state of a vehicle.
type Status string

const (
	StatusReady      Status = "ready"
	StatusToPickup   Status = "toPickup"
	StatusAtPickup   Status = "atPickup"
	StatusToDelivery Status = "toDelivery"
	StatusAtDropoff  Status = "atDropoff"
	StatusReturning  Status = "returning"
	StatusStopped    Status = "stopped"
)

const (
	// teleportMeters is the distance under which navigation completes
	// instantly instead of requesting a route.
	teleportMeters = 100
	// opportunisticRadius is how far a queued booking's pickup may be from
	// the current stop to be boarded on the same halt.
	opportunisticRadius = 200
	// routeRetryDelay is the wall-clock backoff between routing attempts.
	// Route geometry is assumed eventually obtainable, so retries never
	// stop.
	routeRetryDelay = time.Second
	// defaultReplanDebounceMs coalesces bursts of handled bookings into a
	// single solver call.
	defaultReplanDebounceMs = 2000
)

var (
	// ErrDuplicateBooking signals a booking handed twice to the same
	// vehicle, which is a programmer error in the dispatch layer.
	ErrDuplicateBooking = errors.New("booking already handled by this vehicle")
	// ErrDisposed signals use of a vehicle after Dispose.
	ErrDisposed = errors.New("vehicle is disposed")
)

// Event is published on a vehicle's buses when it moves or changes status.
type Event struct {
	Vehicle    *Vehicle
	Status     Status
	Position   geo.Position
	SpeedKmh   float64
	BearingDeg float64
	TimeMs     int64
}

// Config assembles a vehicle. Clock and Router are mandatory; the solver is
// only needed for plan-driven kinds.
type Config struct {
	ID    string
	Kind  Kind
	Fleet string

	Position geo.Position

	Weight            float64
	ParcelCapacity    int
	PassengerCapacity int
	CostPerHour       float64
	CO2PerKmKg        float64

	Clock  *virtualtime.Clock
	Router route.Service
	Solver route.Solver
	Log    logger.Logger

	ReplanDebounceMs int64
}

// Vehicle is a simulated vehicle executing bookings against the logical
// clock.
type Vehicle struct {
	id       string
	kind     Kind
	fleet    string
	clock    *virtualtime.Clock
	router   route.Service
	strategy Strategy
	log      logger.Logger

	debounceMs int64

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	position   geo.Position
	origin     geo.Position
	heading    *geo.Position
	status     Status
	queue      []*model.Booking
	cargo      []*model.Booking
	delivered  []*model.Booking
	passengers []*model.Passenger
	current    *model.Booking
	plan       []model.Instruction
	planBuilt  bool

	weight            float64
	parcelCapacity    int
	passengerCapacity int
	costPerHour       float64
	co2PerKmKg        float64

	co2        float64
	distanceKm float64
	speed      float64
	bearing    float64
	lastMoveMs int64

	moveCancel context.CancelFunc
	disposed   bool

	replanC chan struct{}

	statusEvents *eventbus.Bus[Event]
	movedEvents  *eventbus.Bus[Event]
	cargoEvents  *eventbus.Bus[Event]
}

// New creates a ready vehicle at cfg.Position. Kind defaults fill any
// capacity or emission fields left zero.
func New(cfg Config) (*Vehicle, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("vehicle: nil clock")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("vehicle: nil router")
	}
	kind := cfg.Kind
	if kind == "" {
		kind = KindCar
	}
	defaults, ok := kindDefaults[kind]
	if !ok {
		return nil, fmt.Errorf("vehicle: unknown kind %q", kind)
	}
	applyDefaults(&cfg, defaults)
	id := cfg.ID
	if id == "" {
		id = model.NewID(defaults.idPrefix)
	}
	log := cfg.Log
	if log == nil {
		log = logger.NopLogger{}
	}
	debounce := cfg.ReplanDebounceMs
	if debounce <= 0 {
		debounce = defaultReplanDebounceMs
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &Vehicle{
		id:                id,
		kind:              kind,
		fleet:             cfg.Fleet,
		clock:             cfg.Clock,
		router:            cfg.Router,
		log:               log,
		debounceMs:        debounce,
		ctx:               ctx,
		cancel:            cancel,
		position:          cfg.Position,
		origin:            cfg.Position,
		status:            StatusReady,
		weight:            cfg.Weight,
		parcelCapacity:    cfg.ParcelCapacity,
		passengerCapacity: cfg.PassengerCapacity,
		costPerHour:       cfg.CostPerHour,
		co2PerKmKg:        cfg.CO2PerKmKg,
		replanC:           make(chan struct{}, 1),
		statusEvents:      eventbus.New[Event](),
		movedEvents:       eventbus.New[Event](),
		cargoEvents:       eventbus.New[Event](),
	}
	v.strategy = strategyFor(kind, cfg.Solver)
	go v.replanLoop()
	return v, nil
}

// ID returns the vehicle identifier.
func (v *Vehicle) ID() string { return v.id }

// Kind returns the vehicle kind.
func (v *Vehicle) Kind() Kind { return v.kind }

// Fleet returns the owning fleet name.
func (v *Vehicle) Fleet() string { return v.fleet }

// Clock returns the injected logical clock.
func (v *Vehicle) Clock() *virtualtime.Clock { return v.clock }

// StatusEvents returns the bus firing on status transitions.
func (v *Vehicle) StatusEvents() *eventbus.Bus[Event] { return v.statusEvents }

// MovedEvents returns the bus firing on every position update.
func (v *Vehicle) MovedEvents() *eventbus.Bus[Event] { return v.movedEvents }

// CargoEvents returns the bus firing when cargo is loaded or unloaded.
func (v *Vehicle) CargoEvents() *eventbus.Bus[Event] { return v.cargoEvents }

// Position returns the current position.
func (v *Vehicle) Position() geo.Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// Status returns the current movement state.
func (v *Vehicle) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// QueueLen returns the number of queued bookings.
func (v *Vehicle) QueueLen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.queue)
}

// CargoLen returns the number of bookings on board.
func (v *Vehicle) CargoLen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cargo)
}

// DeliveredCount returns the number of completed bookings.
func (v *Vehicle) DeliveredCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.delivered)
}

// DistanceKm returns the accumulated driven distance.
func (v *Vehicle) DistanceKm() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.distanceKm
}

// CO2 returns the accumulated emissions in kg.
func (v *Vehicle) CO2() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.co2
}

// Speed returns the last observed speed in km/h.
func (v *Vehicle) Speed() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speed
}

// Bearing returns the last observed bearing in degrees.
func (v *Vehicle) Bearing() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bearing
}

// Capacity returns the booking capacity relevant to the vehicle kind.
func (v *Vehicle) Capacity() int {
	if v.kind == KindTaxi || v.kind == KindBus {
		return v.passengerCapacity
	}
	return v.parcelCapacity
}

// CanHandleBooking is a pure capability predicate: booking type accepted by
// the kind and remaining capacity available. No side effects.
func (v *Vehicle) CanHandleBooking(b *model.Booking) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || b == nil {
		return false
	}
	return v.strategy.CanHandle(v, b)
}

// HandleBooking takes ownership of the booking. An idle vehicle activates
// immediately and heads for the pickup; otherwise the booking joins the
// FIFO queue and a plan recompute is scheduled. Handing the same booking
// twice is a programmer error.
func (v *Vehicle) HandleBooking(b *model.Booking) error {
	if b == nil {
		return fmt.Errorf("vehicle %s: nil booking", v.id)
	}
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return ErrDisposed
	}
	if v.holdsLocked(b) {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s on %s", ErrDuplicateBooking, b.ID, v.id)
	}
	idle := v.current == nil && len(v.plan) == 0 &&
		(v.status == StatusReady || v.status == StatusStopped)
	if idle {
		v.current = b
		ev := v.setStatusLocked(StatusToPickup)
		pickup := b.Pickup.Position
		v.mu.Unlock()
		if err := b.Assign(v.id); err != nil {
			return err
		}
		v.statusEvents.Publish(ev)
		v.log.Debugf("%s handling booking %s", v.id, b.ID)
		go v.navigateTo(pickup)
		return nil
	}
	v.queue = append(v.queue, b)
	v.mu.Unlock()
	if err := b.Queued(v.id); err != nil {
		v.log.Warnf("%s queue stamp for %s: %v", v.id, b.ID, err)
	}
	if err := b.Assign(v.id); err != nil {
		return err
	}
	v.log.Debugf("%s queued booking %s", v.id, b.ID)
	v.requestReplan()
	return nil
}

// holdsLocked reports whether the booking is already current, queued or on
// board. Caller holds mu.
func (v *Vehicle) holdsLocked(b *model.Booking) bool {
	if v.current == b {
		return true
	}
	for _, q := range v.queue {
		if q == b {
			return true
		}
	}
	return v.inCargoLocked(b)
}

func (v *Vehicle) inCargoLocked(b *model.Booking) bool {
	for _, c := range v.cargo {
		if c == b {
			return true
		}
	}
	return false
}

// loadLocked counts the bookings the vehicle is committed to: loaded,
// queued, and the active one while it is still on its way to the pickup.
// Caller holds mu.
func (v *Vehicle) loadLocked() int {
	n := len(v.cargo) + len(v.queue)
	if v.current != nil && !v.inCargoLocked(v.current) {
		n++
	}
	return n
}

// setStatusLocked updates status and returns the event to publish after
// unlocking. Caller holds mu.
func (v *Vehicle) setStatusLocked(s Status) Event {
	v.status = s
	return Event{
		Vehicle:  v,
		Status:   s,
		Position: v.position,
		SpeedKmh: v.speed,
		TimeMs:   v.clock.Now(),
	}
}

// Dispose cancels the movement simulation and marks the vehicle inert.
// Bookings held in flight are not reassigned.
func (v *Vehicle) Dispose() {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.disposed = true
	if v.moveCancel != nil {
		v.moveCancel()
		v.moveCancel = nil
	}
	v.mu.Unlock()
	v.cancel()
	v.statusEvents.Close()
	v.movedEvents.Close()
	v.cargoEvents.Close()
}

// Disposed reports whether Dispose has been called.
func (v *Vehicle) Disposed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disposed
}

// requestReplan schedules a debounced plan recompute. Multiple requests
// within the debounce window coalesce into one solver call.
func (v *Vehicle) requestReplan() {
	select {
	case v.replanC <- struct{}{}:
	default:
	}
}

func (v *Vehicle) replanLoop() {
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-v.replanC:
		}
		if err := v.clock.Wait(v.ctx, v.debounceMs); err != nil {
			return
		}
		// Coalesce requests that arrived during the debounce window.
		select {
		case <-v.replanC:
		default:
		}
		v.replan()
	}
}

// replan rebuilds the plan from the queued bookings. A solver failure
// leaves the previous plan untouched.
func (v *Vehicle) replan() {
	v.mu.Lock()
	if v.disposed || len(v.queue) == 0 {
		v.mu.Unlock()
		return
	}
	queue := append([]*model.Booking(nil), v.queue...)
	v.mu.Unlock()

	builder := v.strategy.BuildPlan
	if builder == nil {
		builder = fifoPlan
	}
	plan, err := builder(v.ctx, v, queue)
	if err != nil {
		v.log.Errorf("%s plan solver error, keeping previous plan: %v", v.id, err)
		return
	}

	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.plan = prunePlan(plan)
	v.planBuilt = true
	advance := v.current == nil &&
		(v.status == StatusReady || v.status == StatusStopped || v.status == StatusReturning)
	v.mu.Unlock()
	if advance {
		v.nextInstruction()
	}
}

// prunePlan drops instructions whose bookings have already completed.
func prunePlan(plan []model.Instruction) []model.Instruction {
	out := plan[:0]
	for _, in := range plan {
		if in.Booking != nil && in.Booking.Status() >= model.StatusDelivered {
			continue
		}
		out = append(out, in)
	}
	return out
}

// navigateTo requests a route to the target and plays it back against the
// clock. Short hops and accelerated mode teleport. Routing failures retry
// forever: geometry is assumed eventually obtainable and a booking must
// never fail on it.
func (v *Vehicle) navigateTo(target geo.Position) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.heading = &target
	from := v.position
	v.mu.Unlock()

	if geo.Haversine(from, target) < teleportMeters || v.clock.Accelerated() {
		v.applyMove(target, nil, v.clock.Now())
		v.arrived()
		return
	}

	for {
		r, err := v.router.Route(v.ctx, from, target)
		if err == nil && r != nil && len(r.Coordinates) > 0 {
			v.startRoute(r, v.clock.Now())
			return
		}
		if err == nil {
			err = fmt.Errorf("empty route from %v to %v", from, target)
		}
		v.log.Errorf("%s route error, retrying in %s: %v", v.id, routeRetryDelay, err)
		select {
		case <-v.ctx.Done():
			return
		case <-time.After(routeRetryDelay):
		}
	}
}

// startRoute replaces any running movement simulation with a playback of
// the given route.
func (v *Vehicle) startRoute(r *geo.Route, startedMs int64) {
	points := geo.Breakpoints(r)
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	if v.moveCancel != nil {
		v.moveCancel()
	}
	ctx, cancel := context.WithCancel(v.ctx)
	v.moveCancel = cancel
	v.mu.Unlock()

	ticks := v.clock.Subscribe()
	go func() {
		defer v.clock.Unsubscribe(ticks)
		remaining := points
		for {
			select {
			case <-ctx.Done():
				return
			case now, ok := <-ticks:
				if !ok {
					return
				}
				res := geo.Interpolate(startedMs, now, remaining)
				v.applyMove(res.Position, res.Passed, now)
				if res.Done() {
					v.arrived()
					return
				}
				remaining = res.Remaining
			}
		}
	}()
}

// applyMove updates position and accounting and notifies cargo of the
// movement.
func (v *Vehicle) applyMove(pos geo.Position, passed []geo.Breakpoint, nowMs int64) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	last := v.position
	var meters, seconds float64
	for _, p := range passed {
		meters += p.Meters
		seconds += p.Duration
	}
	if meters == 0 {
		meters = geo.Haversine(last, pos)
	}
	km := meters / 1000
	h := seconds / 60 / 60
	co2 := v.addCarbonDioxideLocked(km)
	v.distanceKm += km
	if h > 0 {
		v.speed = math.Round(km / h)
	} else {
		v.speed = 0
	}
	v.position = pos
	v.lastMoveMs = nowMs

	var ev Event
	var onboard []*model.Booking
	var costShare, co2Share float64
	if meters > 0 {
		v.bearing = geo.Bearing(last, pos)
		ev = Event{
			Vehicle:    v,
			Status:     v.status,
			Position:   pos,
			SpeedKmh:   v.speed,
			BearingDeg: v.bearing,
			TimeMs:     nowMs,
		}
		onboard = append([]*model.Booking(nil), v.cargo...)
		share := float64(len(v.cargo) + 1)
		co2Share = co2 / share
		costShare = h * v.costPerHour / share
	}
	v.mu.Unlock()

	if meters > 0 {
		v.movedEvents.Publish(ev)
		for _, b := range onboard {
			b.Moved(pos, meters, co2Share, costShare)
		}
	}
}

// addCarbonDioxideLocked accumulates emissions for a driven distance.
// Light vehicles burn per km; heavy ones scale with total weight. Caller
// holds mu.
func (v *Vehicle) addCarbonDioxideLocked(km float64) float64 {
	var co2 float64
	switch v.kind {
	case KindCar, KindTaxi, KindBus:
		co2 = km * v.co2PerKmKg
	default:
		co2 = (v.weight + v.cargoWeightLocked()) * km * v.co2PerKmKg
	}
	v.co2 += co2
	return co2
}

func (v *Vehicle) cargoWeightLocked() float64 {
	var total float64
	for _, b := range v.cargo {
		total += b.Weight
	}
	return total
}

// arrived fires when a navigation leg completes and advances the state
// machine.
func (v *Vehicle) arrived() {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.speed = 0
	status := v.status
	hasBooking := v.current != nil
	switch {
	case hasBooking && status == StatusToPickup:
		v.mu.Unlock()
		v.pickup()
	case hasBooking && status == StatusToDelivery:
		v.mu.Unlock()
		v.dropOff()
	case status == StatusReturning:
		ev := v.setStatusLocked(StatusReady)
		morePlan := len(v.plan) > 0
		v.mu.Unlock()
		v.statusEvents.Publish(ev)
		if morePlan {
			v.nextInstruction()
		}
	default:
		ev := v.setStatusLocked(StatusStopped)
		morePlan := len(v.plan) > 0
		v.mu.Unlock()
		v.statusEvents.Publish(ev)
		if morePlan {
			v.nextInstruction()
		}
	}
}

// pickup boards the current booking and any queued booking whose pickup is
// within opportunisticRadius, then heads for the delivery leg.
func (v *Vehicle) pickup() {
	v.mu.Lock()
	if v.disposed || v.current == nil {
		v.mu.Unlock()
		return
	}
	b := v.current
	ev := v.setStatusLocked(StatusAtPickup)
	v.mu.Unlock()
	v.statusEvents.Publish(ev)

	v.waitAtPickup(b)

	v.mu.Lock()
	pos := v.position
	already := b.Status() >= model.StatusPickedUp
	v.removeFromQueueLocked(b)
	if !already {
		v.cargo = append(v.cargo, b)
		if b.Type == model.BookingPassenger && b.Passenger != nil {
			v.passengers = append(v.passengers, b.Passenger)
		}
	}
	extra := v.boardNearbyLocked(pos)
	v.mu.Unlock()

	if already {
		v.log.Warnf("%s already picked up %s", v.id, b.ID)
	} else if err := b.PickedUp(pos); err != nil {
		v.log.Warnf("%s pickup stamp for %s: %v", v.id, b.ID, err)
	}
	v.publishCargo()
	for _, o := range extra {
		if err := o.PickedUp(pos); err != nil {
			v.log.Warnf("%s pickup stamp for %s: %v", v.id, o.ID, err)
		}
		v.publishCargo()
	}

	if b.Destination.Position.Valid() {
		v.mu.Lock()
		ev := v.setStatusLocked(StatusToDelivery)
		dest := b.Destination.Position
		v.mu.Unlock()
		v.statusEvents.Publish(ev)
		v.navigateTo(dest)
		return
	}
	v.next()
}

// waitAtPickup suspends until the booking's departure window opens, for
// kinds that honor it.
func (v *Vehicle) waitAtPickup(b *model.Booking) {
	if !v.strategy.WaitAtPickup {
		return
	}
	dep := b.Pickup.DepartureMs
	if dep <= 0 || dep <= v.clock.Now() {
		return
	}
	v.stopMovement()
	if err := v.clock.WaitUntil(v.ctx, dep); err != nil {
		v.log.Debugf("%s pickup wait aborted: %v", v.id, err)
	}
}

func (v *Vehicle) stopMovement() {
	v.mu.Lock()
	if v.moveCancel != nil {
		v.moveCancel()
		v.moveCancel = nil
	}
	v.mu.Unlock()
}

// boardNearbyLocked moves queued bookings whose pickup is within reach onto
// the vehicle, capacity permitting. Caller holds mu; returned bookings
// still need their pickedUp stamp.
func (v *Vehicle) boardNearbyLocked(pos geo.Position) []*model.Booking {
	var boarded []*model.Booking
	limit := v.Capacity()
	kept := v.queue[:0]
	for _, q := range v.queue {
		full := limit > 0 && len(v.cargo) >= limit
		if !full && geo.Haversine(pos, q.Pickup.Position) < opportunisticRadius {
			v.cargo = append(v.cargo, q)
			if q.Type == model.BookingPassenger && q.Passenger != nil {
				v.passengers = append(v.passengers, q.Passenger)
			}
			boarded = append(boarded, q)
			continue
		}
		kept = append(kept, q)
	}
	v.queue = kept
	return boarded
}

func (v *Vehicle) removeFromQueueLocked(b *model.Booking) {
	for i, q := range v.queue {
		if q == b {
			v.queue = append(v.queue[:i], v.queue[i+1:]...)
			return
		}
	}
}

func (v *Vehicle) removeFromCargoLocked(b *model.Booking) {
	for i, c := range v.cargo {
		if c == b {
			v.cargo = append(v.cargo[:i], v.cargo[i+1:]...)
			return
		}
	}
}

// dropOff delivers the current booking and moves on to the next leg.
func (v *Vehicle) dropOff() {
	v.mu.Lock()
	if v.disposed || v.current == nil {
		v.mu.Unlock()
		return
	}
	b := v.current
	v.current = nil
	pos := v.position
	v.removeFromCargoLocked(b)
	if b.Passenger != nil {
		for i, p := range v.passengers {
			if p == b.Passenger {
				v.passengers = append(v.passengers[:i], v.passengers[i+1:]...)
				break
			}
		}
	}
	v.delivered = append(v.delivered, b)
	ev := v.setStatusLocked(StatusAtDropoff)
	v.mu.Unlock()

	v.statusEvents.Publish(ev)
	if err := b.Delivered(pos); err != nil {
		v.log.Warnf("%s delivery stamp for %s: %v", v.id, b.ID, err)
	}
	v.publishCargo()
	v.log.Debugf("%s delivered %s", v.id, b.ID)
	v.next()
}

// next picks the following leg: nearest cargo first, then the solver plan,
// then the FIFO queue. With nothing left, plan-driven kinds return to the
// hub while others go ready in place.
func (v *Vehicle) next() {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	pos := v.position
	if len(v.cargo) > 0 {
		sort.SliceStable(v.cargo, func(i, j int) bool {
			return geo.Haversine(pos, v.cargo[i].Destination.Position) <
				geo.Haversine(pos, v.cargo[j].Destination.Position)
		})
		b := v.cargo[0]
		v.current = b
		ev := v.setStatusLocked(StatusToDelivery)
		dest := b.Destination.Position
		v.mu.Unlock()
		v.statusEvents.Publish(ev)
		v.navigateTo(dest)
		return
	}
	if len(v.plan) > 0 {
		v.mu.Unlock()
		v.nextInstruction()
		return
	}
	if len(v.queue) > 0 {
		b := v.queue[0]
		v.queue = v.queue[1:]
		v.current = b
		ev := v.setStatusLocked(StatusToPickup)
		pickup := b.Pickup.Position
		v.mu.Unlock()
		v.statusEvents.Publish(ev)
		v.navigateTo(pickup)
		return
	}
	if v.planBuilt && v.strategy.ReturnsToHub &&
		geo.Haversine(pos, v.origin) >= teleportMeters {
		ev := v.setStatusLocked(StatusReturning)
		origin := v.origin
		v.mu.Unlock()
		v.statusEvents.Publish(ev)
		v.navigateTo(origin)
		return
	}
	ev := v.setStatusLocked(StatusReady)
	v.mu.Unlock()
	v.statusEvents.Publish(ev)
}

// nextInstruction executes the next solver plan step.
func (v *Vehicle) nextInstruction() {
	for {
		v.mu.Lock()
		if v.disposed {
			v.mu.Unlock()
			return
		}
		if len(v.plan) == 0 {
			v.mu.Unlock()
			v.next()
			return
		}
		in := v.plan[0]
		v.plan = v.plan[1:]

		switch in.Action {
		case model.ActionStart:
			v.mu.Unlock()
			continue
		case model.ActionPickup:
			b := in.Booking
			if b == nil || b.Status() >= model.StatusPickedUp {
				v.mu.Unlock()
				continue
			}
			v.current = b
			ev := v.setStatusLocked(StatusToPickup)
			pickup := b.Pickup.Position
			v.mu.Unlock()
			v.waitForInstruction(in)
			v.statusEvents.Publish(ev)
			v.navigateTo(pickup)
			return
		case model.ActionDelivery:
			b := in.Booking
			if b == nil || b.Status() >= model.StatusDelivered {
				v.mu.Unlock()
				continue
			}
			v.current = b
			ev := v.setStatusLocked(StatusToDelivery)
			dest := b.Destination.Position
			v.mu.Unlock()
			v.waitForInstruction(in)
			v.statusEvents.Publish(ev)
			v.navigateTo(dest)
			return
		default:
			v.log.Warnf("%s unknown plan action %q", v.id, in.Action)
			v.mu.Unlock()
			continue
		}
	}
}

// waitForInstruction honors solver arrival stamps for kinds that schedule
// against them.
func (v *Vehicle) waitForInstruction(in model.Instruction) {
	if !v.strategy.HonorArrival || in.ArrivalMs <= 0 {
		return
	}
	if err := v.clock.WaitUntil(v.ctx, in.ArrivalMs); err != nil {
		v.log.Debugf("%s instruction wait aborted: %v", v.id, err)
	}
}

func (v *Vehicle) publishCargo() {
	v.mu.Lock()
	ev := Event{
		Vehicle:  v,
		Status:   v.status,
		Position: v.position,
		TimeMs:   v.clock.Now(),
	}
	v.mu.Unlock()
	v.cargoEvents.Publish(ev)
}
