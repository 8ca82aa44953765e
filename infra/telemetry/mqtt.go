// Package telemetry streams simulation events to an MQTT broker so
// visualisations can follow an experiment live. The export is one-way; the
// simulation never consumes broker traffic.
package telemetry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/core/vehicle"
	infralogger "github.com/swedishdeveloper/digital-twin/infra/logger"
)

// Config defines the broker connection parameters.
type Config struct {
	Broker      string `json:"broker" yaml:"broker"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	QoS         byte   `json:"qos" yaml:"qos"`
}

// Publisher forwards vehicle and booking events to the broker.
type Publisher struct {
	cli    paho.Client
	prefix string
	qos    byte
	log    logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type vehicleMessage struct {
	ID         string  `json:"id"`
	Fleet      string  `json:"fleet,omitempty"`
	Status     string  `json:"status"`
	Lon        float64 `json:"lon"`
	Lat        float64 `json:"lat"`
	SpeedKmh   float64 `json:"speed"`
	BearingDeg float64 `json:"bearing"`
	TimeMs     int64   `json:"time"`
}

type bookingMessage struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	VehicleID string  `json:"vehicle_id,omitempty"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	TimeMs    int64   `json:"time"`
}

// New connects to the broker. The client reconnects automatically; events
// arriving while disconnected are dropped.
func New(cfg Config) (*Publisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "digital-twin-" + uuid.NewString()[:8]
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "digitaltwin"
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	cli := paho.NewClient(opts)
	tok := cli.Connect()
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %v", cfg.Broker, tok.Error())
	}
	return &Publisher{
		cli:    cli,
		prefix: prefix,
		qos:    cfg.QoS,
		log:    infralogger.New("telemetry"),
	}, nil
}

// WatchVehicle streams the vehicle's movement and status transitions until
// the vehicle's buses close.
func (p *Publisher) WatchVehicle(v *vehicle.Vehicle) {
	moved := v.MovedEvents().Subscribe()
	status := v.StatusEvents().Subscribe()
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		for ev := range moved {
			p.publishVehicle("position", ev)
		}
	}()
	go func() {
		defer p.wg.Done()
		for ev := range status {
			p.publishVehicle("status", ev)
		}
	}()
}

func (p *Publisher) publishVehicle(kind string, ev vehicle.Event) {
	msg := vehicleMessage{
		ID:         ev.Vehicle.ID(),
		Fleet:      ev.Vehicle.Fleet(),
		Status:     string(ev.Status),
		Lon:        ev.Position.Lon,
		Lat:        ev.Position.Lat,
		SpeedKmh:   ev.SpeedKmh,
		BearingDeg: ev.BearingDeg,
		TimeMs:     ev.TimeMs,
	}
	topic := fmt.Sprintf("%s/vehicle/%s/%s", p.prefix, msg.ID, kind)
	p.publish(topic, msg)
}

// WatchBooking streams the booking's status transitions until its buses
// close.
func (p *Publisher) WatchBooking(b *model.Booking) {
	status := b.StatusEvents().Subscribe()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for ev := range status {
			pos := ev.Booking.Position()
			msg := bookingMessage{
				ID:        ev.Booking.ID,
				Type:      string(ev.Booking.Type),
				Status:    ev.Status.String(),
				VehicleID: ev.Booking.VehicleID(),
				Lon:       pos.Lon,
				Lat:       pos.Lat,
				TimeMs:    ev.TimeMs,
			}
			topic := fmt.Sprintf("%s/booking/%s/status", p.prefix, msg.ID)
			p.publish(topic, msg)
		}
	}()
}

func (p *Publisher) publish(topic string, msg any) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		p.log.Errorf("encode %s: %v", topic, err)
		return
	}
	tok := p.cli.Publish(topic, p.qos, false, raw)
	go func() {
		if tok.WaitTimeout(5*time.Second) && tok.Error() != nil {
			p.log.Warnf("publish %s: %v", topic, tok.Error())
		}
	}()
}

// Close disconnects from the broker. Watch goroutines end when their
// source buses close.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cli.Disconnect(250)
}
