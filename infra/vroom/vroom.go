// Package vroom implements the VRP solver contract against a VROOM HTTP
// instance. Calls are deduplicated through a content-addressed cache and
// throttled by a bounded-concurrency queue so a dispatch storm cannot
// overwhelm the solver.
package vroom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/route"
	infralogger "github.com/swedishdeveloper/digital-twin/infra/logger"
	"github.com/swedishdeveloper/digital-twin/internal/workqueue"
)

const (
	requestTimeout = 60 * time.Second
	// maxConcurrent bounds in-flight solver calls.
	maxConcurrent = 10
	maxAttempts   = 3
	retryDelay    = 2 * time.Second
)

// Client talks to a VROOM solver instance.
type Client struct {
	url   string
	http  *http.Client
	queue *workqueue.Queue
	cache *workqueue.Cache[*route.SolveResponse]
	log   logger.Logger
}

var _ route.Solver = (*Client)(nil)

// New creates a client posting to the given VROOM endpoint.
func New(url string) *Client {
	return &Client{
		url:   url,
		http:  &http.Client{Timeout: requestTimeout},
		queue: workqueue.NewQueue(maxConcurrent),
		cache: workqueue.NewCache[*route.SolveResponse](),
		log:   infralogger.New("vroom"),
	}
}

type vroomStep struct {
	ID       int       `json:"id"`
	Location []float64 `json:"location"`
	// TimeWindows are Unix second pairs.
	TimeWindows [][2]int64 `json:"time_windows,omitempty"`
}

type vroomShipment struct {
	Amount   []int     `json:"amount"`
	Pickup   vroomStep `json:"pickup"`
	Delivery vroomStep `json:"delivery"`
}

type vroomVehicle struct {
	ID         int       `json:"id"`
	Capacity   []int     `json:"capacity"`
	Start      []float64 `json:"start"`
	End        []float64 `json:"end,omitempty"`
	TimeWindow *[2]int64 `json:"time_window,omitempty"`
}

type vroomRequest struct {
	Shipments []vroomShipment `json:"shipments"`
	Vehicles  []vroomVehicle  `json:"vehicles"`
}

type vroomResponse struct {
	Code   int `json:"code"`
	Routes []struct {
		Vehicle int `json:"vehicle"`
		Steps   []struct {
			Type      string `json:"type"`
			ID        int    `json:"id"`
			Arrival   int64  `json:"arrival"`
			Departure int64  `json:"departure"`
		} `json:"steps"`
	} `json:"routes"`
	Unassigned []struct {
		ID int `json:"id"`
	} `json:"unassigned"`
}

// Solve submits the batch to the solver. Identical requests within a run
// are answered from the cache without touching the network.
func (c *Client) Solve(ctx context.Context, req route.SolveRequest) (*route.SolveResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body := encodeRequest(req)
	key, err := workqueue.Key(body)
	if err != nil {
		return nil, fmt.Errorf("vroom: hash request: %w", err)
	}
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	var resp *route.SolveResponse
	err = c.queue.Do(ctx, func() error {
		var doErr error
		resp, doErr = c.post(ctx, body)
		return doErr
	})
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, resp)
	return resp, nil
}

func encodeRequest(req route.SolveRequest) vroomRequest {
	var out vroomRequest
	for _, s := range req.Shipments {
		sh := vroomShipment{
			Amount:   []int{s.Amount},
			Pickup:   vroomStep{ID: s.ID, Location: []float64{s.Pickup.Lon, s.Pickup.Lat}},
			Delivery: vroomStep{ID: s.ID, Location: []float64{s.Delivery.Lon, s.Delivery.Lat}},
		}
		if s.PickupWindow != nil {
			sh.Pickup.TimeWindows = [][2]int64{*s.PickupWindow}
		}
		if s.DeliveryWindow != nil {
			sh.Delivery.TimeWindows = [][2]int64{*s.DeliveryWindow}
		}
		out.Shipments = append(out.Shipments, sh)
	}
	for _, v := range req.Vehicles {
		vv := vroomVehicle{
			ID:         v.ID,
			Capacity:   []int{v.Capacity},
			Start:      []float64{v.Start.Lon, v.Start.Lat},
			TimeWindow: v.TimeWindow,
		}
		if v.End != nil {
			vv.End = []float64{v.End.Lon, v.End.Lat}
		}
		out.Vehicles = append(out.Vehicles, vv)
	}
	return out
}

func (c *Client) post(ctx context.Context, body vroomRequest) (*route.SolveResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		resp, err := c.postOnce(ctx, raw)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.log.Warnf("solve attempt %d/%d failed: %v", attempt, maxAttempts, err)
	}
	return nil, fmt.Errorf("vroom: %w", lastErr)
}

func (c *Client) postOnce(ctx context.Context, raw []byte) (*route.SolveResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			c.log.Warnf("close response body: %v", cerr)
		}
	}()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	var vr vroomResponse
	if err := json.NewDecoder(res.Body).Decode(&vr); err != nil {
		return nil, err
	}
	if vr.Code != 0 {
		return nil, fmt.Errorf("solver error code %d", vr.Code)
	}
	return decodeResponse(vr), nil
}

func decodeResponse(vr vroomResponse) *route.SolveResponse {
	out := &route.SolveResponse{}
	for _, r := range vr.Routes {
		solved := route.SolvedRoute{VehicleID: r.Vehicle}
		for _, s := range r.Steps {
			step := route.Step{
				ShipmentID: s.ID,
				Arrival:    s.Arrival,
				Departure:  s.Departure,
			}
			switch s.Type {
			case "start":
				step.Type = route.StepStart
			case "pickup":
				step.Type = route.StepPickup
			case "delivery":
				step.Type = route.StepDelivery
			case "end":
				step.Type = route.StepEnd
			default:
				continue
			}
			solved.Steps = append(solved.Steps, step)
		}
		out.Routes = append(out.Routes, solved)
	}
	for _, u := range vr.Unassigned {
		out.Unassigned = append(out.Unassigned, u.ID)
	}
	return out
}
