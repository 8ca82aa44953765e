// Package pelias implements reverse geocoding against a Pelias instance.
package pelias

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
	// maxConcurrent bounds in-flight geocoding calls.
	maxConcurrent = 10
	maxAttempts   = 3
	retryDelay    = time.Second
)

// Client talks to a Pelias geocoding instance. Calls are throttled by a
// bounded-concurrency queue; a slot is held only for the duration of one
// network exchange, not across retries.
type Client struct {
	baseURL string
	http    *http.Client
	queue   *workqueue.Queue
	log     logger.Logger
}

var _ route.Geocoder = (*Client)(nil)

// New creates a client against the given Pelias base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		queue:   workqueue.NewQueue(maxConcurrent),
		log:     infralogger.New("pelias"),
	}
}

type reverseResponse struct {
	Features []struct {
		Properties struct {
			Name       string `json:"name"`
			PostalCode string `json:"postalcode"`
		} `json:"properties"`
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Reverse resolves the coordinate to its nearest named place.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*route.Place, error) {
	u := fmt.Sprintf("%s/v1/reverse?%s", c.baseURL, url.Values{
		"point.lat": {fmt.Sprintf("%f", lat)},
		"point.lon": {fmt.Sprintf("%f", lon)},
		"size":      {"1"},
	}.Encode())

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		var place *route.Place
		err := c.queue.Do(ctx, func() error {
			var doErr error
			place, doErr = c.reverseOnce(ctx, u)
			return doErr
		})
		if err == nil {
			return place, nil
		}
		lastErr = err
		c.log.Warnf("reverse attempt %d/%d failed: %v", attempt, maxAttempts, err)
	}
	return nil, fmt.Errorf("pelias: %w", lastErr)
}

func (c *Client) reverseOnce(ctx context.Context, u string) (*route.Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
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
	var rr reverseResponse
	if err := json.NewDecoder(res.Body).Decode(&rr); err != nil {
		return nil, err
	}
	if len(rr.Features) == 0 {
		return nil, fmt.Errorf("no place found")
	}
	f := rr.Features[0]
	place := &route.Place{
		Name:       f.Properties.Name,
		PostalCode: f.Properties.PostalCode,
	}
	if len(f.Geometry.Coordinates) >= 2 {
		place.Position = geo.Position{Lon: f.Geometry.Coordinates[0], Lat: f.Geometry.Coordinates[1]}
	}
	return place, nil
}
