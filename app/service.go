// Package app wires the simulation core to its external collaborators and
// owns the lifecycle of an experiment run.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/swedishdeveloper/digital-twin/config"
	"github.com/swedishdeveloper/digital-twin/core/fleet"
	"github.com/swedishdeveloper/digital-twin/core/geo"
	corelogger "github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/route"
	corestats "github.com/swedishdeveloper/digital-twin/core/stats"
	"github.com/swedishdeveloper/digital-twin/core/vehicle"
	"github.com/swedishdeveloper/digital-twin/core/virtualtime"
	"github.com/swedishdeveloper/digital-twin/infra/logger"
	"github.com/swedishdeveloper/digital-twin/infra/osrm"
	"github.com/swedishdeveloper/digital-twin/infra/pelias"
	"github.com/swedishdeveloper/digital-twin/infra/stats"
	"github.com/swedishdeveloper/digital-twin/infra/telemetry"
	"github.com/swedishdeveloper/digital-twin/infra/vroom"
)

// snapshotInterval is the wall-clock cadence of vehicle total exports.
const snapshotInterval = 30 * time.Second

// Service is one assembled experiment: clock, municipality, fleets and the
// export pipelines.
type Service struct {
	cfg          *config.Config
	clock        *virtualtime.Clock
	municipality *fleet.Municipality
	router       route.Service
	geocoder     route.Geocoder
	sink         corestats.Sink
	telemetry    *telemetry.Publisher
	log          corelogger.Logger
}

// New builds the experiment from the configuration. External collaborators
// are reached lazily; only the telemetry broker is connected up front.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")
	clock := virtualtime.New(cfg.Simulation.ClockMultiplier())
	router := osrm.New(cfg.Services.OSRMURL)
	solver := vroom.New(cfg.Services.VroomURL)
	geocoder := pelias.New(cfg.Services.PeliasURL)
	sink := stats.NewInfluxSinkWithFallback(cfg.Influx)

	var pub *telemetry.Publisher
	if cfg.Telemetry.Broker != "" {
		var err error
		pub, err = telemetry.New(cfg.Telemetry)
		if err != nil {
			log.Warnf("telemetry disabled: %v", err)
		}
	}

	var fleets []*fleet.Fleet
	for _, fc := range cfg.Simulation.Fleets {
		counts := make(map[vehicle.Kind]int, len(fc.Vehicles))
		for kind, n := range fc.Vehicles {
			counts[vehicle.Kind(kind)] = n
		}
		types := make([]model.BookingType, 0, len(fc.BookingTypes))
		for _, t := range fc.BookingTypes {
			types = append(types, model.BookingType(t))
		}
		f, err := fleet.New(fleet.Config{
			Name:          fc.Name,
			Hub:           geo.Position{Lon: fc.HubLon, Lat: fc.HubLat},
			BookingTypes:  types,
			VehicleCounts: counts,
			Clock:         clock,
			Router:        router,
			Solver:        solver,
			Log:           logger.New("fleet." + fc.Name),
		})
		if err != nil {
			for _, built := range fleets {
				built.Stop()
			}
			clock.Stop()
			return nil, fmt.Errorf("fleet %s: %w", fc.Name, err)
		}
		fleets = append(fleets, f)
	}

	m := fleet.NewMunicipality(cfg.Simulation.Municipality, geo.Position{}, fleets, logger.New("municipality"))
	svc := &Service{
		cfg:          cfg,
		clock:        clock,
		municipality: m,
		router:       router,
		geocoder:     geocoder,
		sink:         sink,
		telemetry:    pub,
		log:          log,
	}
	if pub != nil {
		for _, v := range m.Vehicles() {
			pub.WatchVehicle(v)
		}
	}
	return svc, nil
}

// Clock returns the experiment's logical clock.
func (s *Service) Clock() *virtualtime.Clock { return s.clock }

// Municipality returns the experiment's booking entry point.
func (s *Service) Municipality() *fleet.Municipality { return s.municipality }

// Geocoder returns the reverse geocoding collaborator.
func (s *Service) Geocoder() route.Geocoder { return s.geocoder }

// SubmitBooking routes the booking into the municipality and attaches the
// export pipelines to its lifecycle.
func (s *Service) SubmitBooking(b *model.Booking) error {
	if s.telemetry != nil {
		s.telemetry.WatchBooking(b)
	}
	delivered := b.DeliveredEvents().Subscribe()
	go func() {
		for ev := range delivered {
			rec := corestats.DeliveryRecord{
				BookingID:     ev.Booking.ID,
				VehicleID:     ev.Booking.VehicleID(),
				Fleet:         ev.Booking.Fleet(),
				Type:          ev.Booking.Type,
				DistanceM:     ev.Booking.Distance(),
				CO2Kg:         ev.Booking.CO2(),
				Cost:          ev.Booking.Cost(),
				DeliveryTimeS: ev.Booking.DeliveryTime(),
				DeliveredAtMs: ev.TimeMs,
			}
			if err := s.sink.RecordDelivery(rec); err != nil {
				s.log.Warnf("record delivery %s: %v", rec.BookingID, err)
			}
		}
	}()
	return s.municipality.HandleBooking(b)
}

// Run serves metrics and exports vehicle snapshots until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	stats.StartPromServer(ctx, s.cfg.PrometheusPort)
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.recordSnapshots()
		}
	}
}

func (s *Service) recordSnapshots() {
	now := s.clock.Now()
	for _, v := range s.municipality.Vehicles() {
		snap := corestats.VehicleSnapshot{
			VehicleID:  v.ID(),
			Fleet:      v.Fleet(),
			Kind:       string(v.Kind()),
			DistanceKm: v.DistanceKm(),
			CO2Kg:      v.CO2(),
			Delivered:  v.DeliveredCount(),
			TimeMs:     now,
		}
		if err := s.sink.RecordVehicleSnapshot(snap); err != nil {
			s.log.Warnf("record snapshot %s: %v", snap.VehicleID, err)
		}
	}
}

// Close tears the experiment down: fleets first so no vehicle observes a
// stopped clock.
func (s *Service) Close() error {
	s.municipality.Stop()
	s.clock.Stop()
	if s.telemetry != nil {
		s.telemetry.Close()
	}
	return s.sink.Close()
}
