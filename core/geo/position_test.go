package geo

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	ljusdal := Position{Lon: 16.0933, Lat: 61.8294}
	stockholm := Position{Lon: 18.0686, Lat: 59.3293}

	d := Haversine(ljusdal, stockholm)
	if d < 290000 || d > 310000 {
		t.Fatalf("expected roughly 300km, got %fm", d)
	}
	if d != math.Round(d) {
		t.Errorf("distance not rounded: %f", d)
	}
	if back := Haversine(stockholm, ljusdal); back != d {
		t.Errorf("asymmetric distance: %f vs %f", d, back)
	}
	if self := Haversine(ljusdal, ljusdal); self != 0 {
		t.Errorf("distance to self: %f", self)
	}
}

func TestHaversineInvalidInput(t *testing.T) {
	valid := Position{Lon: 16.0933, Lat: 61.8294}
	cases := []Position{
		{},
		{Lon: math.NaN(), Lat: 61},
		{Lon: 16, Lat: math.NaN()},
		{Lon: 200, Lat: 61},
		{Lon: 16, Lat: -95},
	}
	for _, p := range cases {
		if d := Haversine(valid, p); d != 0 {
			t.Errorf("expected 0 for invalid %v, got %f", p, d)
		}
		if d := Haversine(p, valid); d != 0 {
			t.Errorf("expected 0 for invalid %v, got %f", p, d)
		}
	}
}

func TestBearing(t *testing.T) {
	a := Position{Lon: 16.0, Lat: 61.0}
	north := Position{Lon: 16.0, Lat: 62.0}
	if b := Bearing(a, north); b != 0 {
		t.Errorf("expected bearing 0 due north, got %f", b)
	}
	east := Position{Lon: 17.0, Lat: 61.0}
	if b := Bearing(a, east); b < 88 || b > 92 {
		t.Errorf("expected bearing near 90 due east, got %f", b)
	}
	if b := Bearing(Position{}, north); b != 0 {
		t.Errorf("expected 0 for invalid origin, got %f", b)
	}
}

func TestValid(t *testing.T) {
	if (Position{}).Valid() {
		t.Error("zero position should be invalid")
	}
	if !(Position{Lon: 16.0933, Lat: 61.8294}).Valid() {
		t.Error("real position should be valid")
	}
}
