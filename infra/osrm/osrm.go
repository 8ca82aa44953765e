// Package osrm implements route geometry lookup against an OSRM HTTP
// instance.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/swedishdeveloper/digital-twin/core/geo"
	"github.com/swedishdeveloper/digital-twin/core/logger"
	"github.com/swedishdeveloper/digital-twin/core/route"
	infralogger "github.com/swedishdeveloper/digital-twin/infra/logger"
	"github.com/swedishdeveloper/digital-twin/internal/workqueue"
)

const (
	requestTimeout = 10 * time.Second
	// maxConcurrent bounds in-flight routing calls.
	maxConcurrent = 10
)

// Client talks to an OSRM routing instance. Calls are throttled by a
// bounded-concurrency queue so a fleet of moving vehicles cannot overwhelm
// the router.
type Client struct {
	baseURL string
	http    *http.Client
	queue   *workqueue.Queue
	log     logger.Logger
}

var _ route.Service = (*Client)(nil)

// New creates a client against the given OSRM base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		queue:   workqueue.NewQueue(maxConcurrent),
		log:     infralogger.New("osrm"),
	}
}

type osrmRoute struct {
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
	Geometry struct {
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometry"`
	Legs []struct {
		Annotation struct {
			Duration []float64 `json:"duration"`
			Distance []float64 `json:"distance"`
		} `json:"annotation"`
	} `json:"legs"`
}

type routeResponse struct {
	Code   string      `json:"code"`
	Routes []osrmRoute `json:"routes"`
}

// Route returns the fastest road route between the positions. Geometry is
// requested as GeoJSON with per-segment annotations so the movement
// simulation can replay it.
func (c *Client) Route(ctx context.Context, origin, destination geo.Position) (*geo.Route, error) {
	u := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?%s",
		c.baseURL,
		origin.Lon, origin.Lat, destination.Lon, destination.Lat,
		url.Values{
			"geometries":   {"geojson"},
			"annotations":  {"true"},
			"alternatives": {"true"},
			"overview":     {"full"},
		}.Encode())

	var resp routeResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return nil, fmt.Errorf("osrm: no route (%s)", resp.Code)
	}

	best := resp.Routes[0]
	for _, r := range resp.Routes[1:] {
		if r.Duration < best.Duration {
			best = r
		}
	}
	out := &geo.Route{Duration: best.Duration}
	for _, coord := range best.Geometry.Coordinates {
		if len(coord) < 2 {
			continue
		}
		out.Coordinates = append(out.Coordinates, geo.Position{Lon: coord[0], Lat: coord[1]})
	}
	for _, leg := range best.Legs {
		out.Durations = append(out.Durations, leg.Annotation.Duration...)
		out.Distances = append(out.Distances, leg.Annotation.Distance...)
	}
	return out, nil
}

type nearestResponse struct {
	Code      string `json:"code"`
	Waypoints []struct {
		Location []float64 `json:"location"`
	} `json:"waypoints"`
}

// Nearest snaps the position to the road network.
func (c *Client) Nearest(ctx context.Context, position geo.Position) (*geo.Position, error) {
	u := fmt.Sprintf("%s/nearest/v1/driving/%f,%f", c.baseURL, position.Lon, position.Lat)
	var resp nearestResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "Ok" || len(resp.Waypoints) == 0 || len(resp.Waypoints[0].Location) < 2 {
		return nil, nil
	}
	loc := resp.Waypoints[0].Location
	return &geo.Position{Lon: loc[0], Lat: loc[1]}, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	return c.queue.Do(ctx, func() error {
		return c.getOnce(ctx, u, out)
	})
}

func (c *Client) getOnce(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			c.log.Warnf("close response body: %v", cerr)
		}
	}()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("osrm: unexpected status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
