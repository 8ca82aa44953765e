package model

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/virtualtime"
)

var (
	testStart = time.Date(2025, 6, 2, 6, 48, 0, 0, time.UTC)
	pickupPos = geo.Position{Lon: 16.0950, Lat: 61.8300}
	dropPos   = geo.Position{Lon: 16.1200, Lat: 61.8450}
)

func newTestBooking(clock *virtualtime.Clock) *Booking {
	return NewBooking(BookingParams{
		Type:        BookingParcel,
		Pickup:      Stop{Position: pickupPos},
		Destination: Stop{Position: dropPos},
		Clock:       clock,
	})
}

func TestBookingLifecycle(t *testing.T) {
	clock := virtualtime.NewAt(0, testStart)
	defer clock.Stop()
	b := newTestBooking(clock)
	defer b.Close()

	statusCh := b.StatusEvents().Subscribe()

	if b.Status() != StatusUnhandled {
		t.Fatalf("new booking status = %s", b.Status())
	}
	if err := b.Queued("v-1"); err != nil {
		t.Fatalf("queued: %v", err)
	}
	if err := b.Assign("v-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := b.PickedUp(pickupPos); err != nil {
		t.Fatalf("pickedUp: %v", err)
	}
	if err := b.Delivered(dropPos); err != nil {
		t.Fatalf("delivered: %v", err)
	}

	want := []BookingStatus{StatusQueued, StatusAssigned, StatusPickedUp, StatusDelivered}
	for _, w := range want {
		select {
		case ev := <-statusCh:
			if ev.Status != w {
				t.Fatalf("status event = %s, want %s", ev.Status, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing status event %s", w)
		}
	}
	if b.Position() != dropPos {
		t.Errorf("final position = %v", b.Position())
	}
}

func TestBookingRejectsSecondVehicle(t *testing.T) {
	clock := virtualtime.NewAt(0, testStart)
	defer clock.Stop()
	b := newTestBooking(clock)
	defer b.Close()

	if err := b.Assign("v-1"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	// Same owner again is a no-op.
	if err := b.Assign("v-1"); err != nil {
		t.Fatalf("repeat assign: %v", err)
	}
	err := b.Assign("v-2")
	if !errors.Is(err, ErrReassigned) {
		t.Fatalf("expected ErrReassigned, got %v", err)
	}
	if b.VehicleID() != "v-1" {
		t.Errorf("owner changed to %s", b.VehicleID())
	}
}

func TestBookingInvalidTransitions(t *testing.T) {
	clock := virtualtime.NewAt(0, testStart)
	defer clock.Stop()
	b := newTestBooking(clock)
	defer b.Close()

	if err := b.Assign("v-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := b.Queued("v-1"); err == nil {
		t.Error("queued after assigned should fail")
	}
	if err := b.Delivered(dropPos); err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if err := b.Delivered(dropPos); err == nil {
		t.Error("second delivered should fail")
	}
	if err := b.PickedUp(pickupPos); err == nil {
		t.Error("pickedUp after delivered should fail")
	}
}

func TestDeliveryTimeFromAssignment(t *testing.T) {
	clock := virtualtime.NewAt(math.Inf(1), testStart)
	defer clock.Stop()
	b := newTestBooking(clock)
	defer b.Close()

	if err := b.Assign("v-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := clock.WaitUntil(context.Background(), b.AssignedAt()+60_000); err != nil {
		t.Fatalf("advance clock: %v", err)
	}
	if err := b.PickedUp(pickupPos); err != nil {
		t.Fatalf("pickedUp: %v", err)
	}
	if err := b.Delivered(dropPos); err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if got := b.DeliveryTime(); got != 60 {
		t.Fatalf("delivery time = %f, want 60", got)
	}
}

func TestDeliveryTimeFallsBackToQueued(t *testing.T) {
	clock := virtualtime.NewAt(math.Inf(1), testStart)
	defer clock.Stop()
	b := newTestBooking(clock)
	defer b.Close()

	if err := b.Queued("v-1"); err != nil {
		t.Fatalf("queued: %v", err)
	}
	queuedAt := b.QueuedAt()
	if err := clock.WaitUntil(context.Background(), queuedAt+30_000); err != nil {
		t.Fatalf("advance clock: %v", err)
	}
	if err := b.Delivered(dropPos); err != nil {
		t.Fatalf("delivered: %v", err)
	}
	// Never explicitly assigned after queueing, so queued is the reference.
	if got := b.DeliveryTime(); got != 30 {
		t.Fatalf("delivery time = %f, want 30", got)
	}
}

func TestMovedAccumulatesAndForwardsToPassenger(t *testing.T) {
	clock := virtualtime.NewAt(0, testStart)
	defer clock.Stop()
	p := NewPassenger("Elsa", pickupPos)
	b := NewBooking(BookingParams{
		Type:        BookingPassenger,
		Pickup:      Stop{Position: pickupPos},
		Destination: Stop{Position: dropPos},
		Passenger:   p,
		Clock:       clock,
	})
	defer b.Close()

	mid := geo.Position{Lon: 16.1000, Lat: 61.8350}
	b.Moved(mid, 500, 0.06, 12.5)
	b.Moved(dropPos, 700, 0.08, 17.5)

	if b.Distance() != 1200 {
		t.Errorf("booking distance = %f", b.Distance())
	}
	if diff := b.CO2() - 0.14; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("booking co2 = %f", b.CO2())
	}
	if b.Cost() != 30 {
		t.Errorf("booking cost = %f", b.Cost())
	}
	if p.Distance() != 1200 {
		t.Errorf("passenger distance = %f", p.Distance())
	}
	if p.Position() != dropPos {
		t.Errorf("passenger position = %v", p.Position())
	}
}

func TestNewBookingIDFromSender(t *testing.T) {
	clock := virtualtime.NewAt(0, testStart)
	defer clock.Stop()
	b := NewBooking(BookingParams{
		Sender: "Svensk Retur & Co",
		Pickup: Stop{Position: pickupPos},
		Clock:  clock,
	})
	defer b.Close()

	const prefix = "svenskretur"
	if len(b.ID) <= len(prefix) || b.ID[:len(prefix)] != prefix {
		t.Fatalf("unexpected id %q", b.ID)
	}
}
