// Package scenarios runs end-to-end experiment definitions loaded from
// YAML files. Each scenario declares vehicles, bookings and the expected
// delivery outcome; the runner plays them against an accelerated clock.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/vehicle"
	"github.com/swedishdeveloper/digital-twin/core/virtualtime"
)

type PositionDef struct {
	Lon float64 `yaml:"lon"`
	Lat float64 `yaml:"lat"`
}

func (p PositionDef) ToModel() geo.Position {
	return geo.Position{Lon: p.Lon, Lat: p.Lat}
}

type VehicleDef struct {
	ID       string      `yaml:"id"`
	Kind     string      `yaml:"kind"`
	Position PositionDef `yaml:"position"`
	Capacity int         `yaml:"capacity,omitempty"`
}

type BookingDef struct {
	ID          string      `yaml:"id"`
	Type        string      `yaml:"type"`
	Sender      string      `yaml:"sender,omitempty"`
	Pickup      PositionDef `yaml:"pickup"`
	Destination PositionDef `yaml:"destination"`
}

func (b BookingDef) Params(clock *virtualtime.Clock) model.BookingParams {
	return model.BookingParams{
		ID:          b.ID,
		Sender:      b.Sender,
		Type:        model.BookingType(b.Type),
		Pickup:      model.Stop{Position: b.Pickup.ToModel()},
		Destination: model.Stop{Position: b.Destination.ToModel()},
		Clock:       clock,
	}
}

type Expected struct {
	Delivered int `yaml:"delivered"`
}

type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Vehicles    []VehicleDef `yaml:"vehicles"`
	Bookings    []BookingDef `yaml:"bookings"`
	Expected    Expected     `yaml:"expected"`
}

// Load reads a scenario definition from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func parseKind(k string) vehicle.Kind {
	if k == "" {
		return vehicle.KindCar
	}
	return vehicle.Kind(k)
}
