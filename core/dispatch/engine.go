// Package dispatch matches incoming bookings to fleet vehicles in buffered
// rounds: small rounds are solved by direct nearest matching, large ones by
// clustering the bookings around the available vehicles.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/swedishdeveloper/digital-twin/core/cluster"
	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/vehicle"
)

const (
	// defaultBatchWindow is how long a round collects bookings before
	// dispatching. The window runs on wall time: batching throughput is an
	// infrastructure concern, independent of the simulation clock.
	defaultBatchWindow = 5 * time.Second
	// defaultBatchLimit flushes a round early once this many bookings have
	// accumulated.
	defaultBatchLimit = 300
	// retryDelay spaces out re-dispatch of bookings no vehicle could take.
	retryDelay = time.Second
)

// VehicleSource yields the vehicles currently available for dispatch.
type VehicleSource func() []*vehicle.Vehicle

// Config assembles an Engine.
type Config struct {
	Vehicles VehicleSource
	Log      logger.Logger

	// BatchWindow and BatchLimit override the round buffering; zero keeps
	// the defaults.
	BatchWindow time.Duration
	BatchLimit  int
}

// Engine buffers bookings and dispatches them round by round.
type Engine struct {
	vehicles VehicleSource
	log      logger.Logger

	window time.Duration
	limit  int

	in     chan *model.Booking
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped engine. Call Start to begin dispatching.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logger.NopLogger{}
	}
	window := cfg.BatchWindow
	if window <= 0 {
		window = defaultBatchWindow
	}
	limit := cfg.BatchLimit
	if limit <= 0 || limit > cluster.MaxBatchSize {
		limit = defaultBatchLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		vehicles: cfg.Vehicles,
		log:      log,
		window:   window,
		limit:    limit,
		in:       make(chan *model.Booking, 1024),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the dispatch loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()
}

// Stop halts the loop. Buffered bookings are dropped.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

// Dispatch enqueues a booking for the next round. Safe for concurrent use.
func (e *Engine) Dispatch(b *model.Booking) {
	if b == nil {
		return
	}
	select {
	case e.in <- b:
	case <-e.ctx.Done():
	}
}

func (e *Engine) run() {
	for {
		batch := e.collect()
		if batch == nil {
			return
		}
		failed := e.dispatchBatch(batch)
		if len(failed) == 0 {
			continue
		}
		bookingsRetried.Add(float64(len(failed)))
		e.log.Warnf("dispatch round left %d bookings unhandled, retrying", len(failed))
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(retryDelay):
		}
		for _, b := range failed {
			e.Dispatch(b)
		}
	}
}

// collect blocks for the first booking of a round, then buffers followers
// until the window closes or the limit is hit. Returns nil on shutdown.
func (e *Engine) collect() []*model.Booking {
	var batch []*model.Booking
	select {
	case <-e.ctx.Done():
		return nil
	case b := <-e.in:
		batch = append(batch, b)
	}
	timer := time.NewTimer(e.window)
	defer timer.Stop()
	for len(batch) < e.limit {
		select {
		case <-e.ctx.Done():
			return nil
		case b := <-e.in:
			batch = append(batch, b)
		case <-timer.C:
			return batch
		}
	}
	return batch
}

// dispatchBatch hands every booking of the round to a vehicle and returns
// the ones that found none.
func (e *Engine) dispatchBatch(batch []*model.Booking) []*model.Booking {
	pending := batch[:0]
	for _, b := range batch {
		if b.VehicleID() != "" {
			continue
		}
		pending = append(pending, b)
	}
	if len(pending) == 0 {
		return nil
	}
	batchSize.Observe(float64(len(pending)))

	vehicles := e.vehicles()
	if len(vehicles) == 0 {
		e.log.Warnf("no vehicles available for %d bookings", len(pending))
		return pending
	}

	var assignments map[*model.Booking]*vehicle.Vehicle
	if len(vehicles) >= len(pending) {
		assignments = matchDirect(pending, vehicles)
	} else {
		var err error
		assignments, err = matchClustered(pending, vehicles)
		if err != nil {
			e.log.Errorf("clustering failed, falling back to direct matching: %v", err)
			assignments = matchDirect(pending, vehicles)
		}
	}

	var failed []*model.Booking
	for _, b := range pending {
		v := assignments[b]
		if v == nil {
			failed = append(failed, b)
			continue
		}
		if err := v.HandleBooking(b); err != nil {
			e.log.Errorf("vehicle %s rejected booking %s: %v", v.ID(), b.ID, err)
			failed = append(failed, b)
			continue
		}
		bookingsDispatched.WithLabelValues(string(b.Type)).Inc()
	}
	return failed
}

// matchDirect pairs each booking with the nearest capable vehicle, using
// every vehicle at most once while unused capable vehicles remain.
func matchDirect(bookings []*model.Booking, vehicles []*vehicle.Vehicle) map[*model.Booking]*vehicle.Vehicle {
	out := make(map[*model.Booking]*vehicle.Vehicle, len(bookings))
	used := make(map[*vehicle.Vehicle]bool, len(vehicles))
	for _, b := range bookings {
		if v := nearestCapable(b, vehicles, used); v != nil {
			out[b] = v
			used[v] = true
			continue
		}
		// All distinct capable vehicles taken this round; allow reuse.
		if v := nearestCapable(b, vehicles, nil); v != nil {
			out[b] = v
		}
	}
	return out
}

func nearestCapable(b *model.Booking, vehicles []*vehicle.Vehicle, used map[*vehicle.Vehicle]bool) *vehicle.Vehicle {
	var best *vehicle.Vehicle
	var bestDist float64
	for _, v := range vehicles {
		if used[v] || !v.CanHandleBooking(b) {
			continue
		}
		d := geo.Haversine(v.Position(), b.Pickup.Position)
		if best == nil || d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

// matchClustered partitions the bookings into one cluster per vehicle and
// assigns each cluster to the nearest capable vehicle.
func matchClustered(bookings []*model.Booking, vehicles []*vehicle.Vehicle) (map[*model.Booking]*vehicle.Vehicle, error) {
	points := make([]geo.Position, len(bookings))
	for i, b := range bookings {
		points[i] = b.Pickup.Position
	}
	assign, err := cluster.Partition(points, len(vehicles))
	if err != nil {
		return nil, err
	}

	// Cluster centroids, then nearest free vehicle per cluster.
	centroids := make([]geo.Position, len(vehicles))
	counts := make([]int, len(vehicles))
	for i, c := range assign {
		centroids[c].Lon += points[i].Lon
		centroids[c].Lat += points[i].Lat
		counts[c]++
	}
	clusterVehicle := make([]*vehicle.Vehicle, len(vehicles))
	taken := make(map[*vehicle.Vehicle]bool, len(vehicles))
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		centroids[c].Lon /= float64(counts[c])
		centroids[c].Lat /= float64(counts[c])
		var best *vehicle.Vehicle
		var bestDist float64
		for _, v := range vehicles {
			if taken[v] {
				continue
			}
			d := geo.Haversine(v.Position(), centroids[c])
			if best == nil || d < bestDist {
				best, bestDist = v, d
			}
		}
		clusterVehicle[c] = best
		if best != nil {
			taken[best] = true
		}
	}

	out := make(map[*model.Booking]*vehicle.Vehicle, len(bookings))
	for i, b := range bookings {
		v := clusterVehicle[assign[i]]
		if v != nil && v.CanHandleBooking(b) {
			out[b] = v
			continue
		}
		// Cluster owner full or wrong kind: any capable vehicle will do.
		if alt := nearestCapable(b, vehicles, nil); alt != nil {
			out[b] = alt
		}
	}
	return out, nil
}
