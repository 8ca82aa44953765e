// Package stats defines the contract to the external statistics collector.
package stats

import "github.com/swedishdeveloper/digital-twin/core/model"

// DeliveryRecord summarizes a completed booking.
type DeliveryRecord struct {
	BookingID     string
	VehicleID     string
	Fleet         string
	Type          model.BookingType
	DistanceM     float64
	CO2Kg         float64
	Cost          float64
	DeliveryTimeS float64
	// DeliveredAtMs is the logical delivery stamp in Unix milliseconds.
	DeliveredAtMs int64
}

// VehicleSnapshot captures a vehicle's accumulated totals.
type VehicleSnapshot struct {
	VehicleID  string
	Fleet      string
	Kind       string
	DistanceKm float64
	CO2Kg      float64
	Delivered  int
	TimeMs     int64
}

// Sink receives simulation outcomes. Implementations must tolerate being
// called from multiple goroutines.
type Sink interface {
	RecordDelivery(rec DeliveryRecord) error
	RecordVehicleSnapshot(snap VehicleSnapshot) error
	Close() error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordDelivery(DeliveryRecord) error         { return nil }
func (NopSink) RecordVehicleSnapshot(VehicleSnapshot) error { return nil }
func (NopSink) Close() error                                { return nil }
