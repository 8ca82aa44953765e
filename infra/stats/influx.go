// Package stats writes simulation outcomes to an InfluxDB instance and
// serves the Prometheus scrape endpoint.
package stats

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	corelogger "github.com/swedishdeveloper/digital-twin/core/logger"
	corestats "github.com/swedishdeveloper/digital-twin/core/stats"
	"github.com/swedishdeveloper/digital-twin/infra/logger"
)

// Config holds the InfluxDB connection parameters.
type Config struct {
	URL    string `json:"url" yaml:"url"`
	Token  string `json:"token" yaml:"token"`
	Org    string `json:"org" yaml:"org"`
	Bucket string `json:"bucket" yaml:"bucket"`
}

// influxSink writes simulation records using the official client.
type influxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      corelogger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg Config) corestats.Sink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &influxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so an absent collector never stalls
// an experiment.
func NewInfluxSinkWithFallback(cfg Config) corestats.Sink {
	if cfg.URL == "" {
		return corestats.NopSink{}
	}
	sink := NewInfluxSink(cfg).(*influxSink)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return corestats.NopSink{}
	}
	return sink
}

// RecordDelivery writes a completed booking as a point.
func (s *influxSink) RecordDelivery(rec corestats.DeliveryRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := influxdb2.NewPoint("delivery",
		map[string]string{
			"booking_type": string(rec.Type),
			"fleet":        rec.Fleet,
			"vehicle_id":   rec.VehicleID,
		},
		map[string]any{
			"booking_id":      rec.BookingID,
			"distance_m":      rec.DistanceM,
			"co2_kg":          rec.CO2Kg,
			"cost":            rec.Cost,
			"delivery_time_s": rec.DeliveryTimeS,
		},
		time.UnixMilli(rec.DeliveredAtMs))
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordVehicleSnapshot writes a vehicle's accumulated totals as a point.
func (s *influxSink) RecordVehicleSnapshot(snap corestats.VehicleSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := influxdb2.NewPoint("vehicle",
		map[string]string{
			"vehicle_id": snap.VehicleID,
			"fleet":      snap.Fleet,
			"kind":       snap.Kind,
		},
		map[string]any{
			"distance_km": snap.DistanceKm,
			"co2_kg":      snap.CO2Kg,
			"delivered":   snap.Delivered,
		},
		time.UnixMilli(snap.TimeMs))
	return s.writeAPI.WritePoint(ctx, p)
}

// Close flushes and closes the underlying client.
func (s *influxSink) Close() error {
	s.client.Close()
	return nil
}
