/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package orbital wraps the external orbital propagation service. All calls
// flow through the orbital circuit breaker and carry a per-call timeout that
// counts as a breaker failure on expiry.
package orbital

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/resilience"
)

const (
	DefaultTimeout = 10 * time.Second

	// The service rejects trajectories above this; pre-validate to save a
	// round trip.
	maxTrajectoryPoints = 10000

	trajectoryCacheTTL = time.Minute
)

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
	trajCache  *cache.Cache
}

type HTTPOption func(*HTTPClient)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

func NewHTTPClient(baseURL string, breaker *resilience.Breaker, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		breaker:    breaker,
		trajCache:  cache.New(trajectoryCacheTTL, trajectoryCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) PropagatePosition(ctx context.Context, satelliteID string, tle v1.TLE, at time.Time) (*PositionResult, error) {
	req := propagateRequest{
		SatelliteID:   satelliteID,
		TLELine1:      tle.Line1,
		TLELine2:      tle.Line2,
		TimestampUnix: at.Unix(),
	}
	return resilience.Do(ctx, c.breaker, func(ctx context.Context) (*PositionResult, error) {
		var resp propagateResponse
		if err := c.post(ctx, "/api/propagate", req, &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("propagating position for %s, %s", satelliteID, resp.ErrorMessage)
		}
		if resp.Position == nil || resp.Velocity == nil {
			return nil, fmt.Errorf("propagating position for %s, response missing state vector", satelliteID)
		}
		out := &PositionResult{
			Position: v1.Vector3{X: resp.Position.XKM, Y: resp.Position.YKM, Z: resp.Position.ZKM},
			Velocity: v1.Vector3{X: resp.Velocity.VXKMS, Y: resp.Velocity.VYKMS, Z: resp.Velocity.VZKMS},
		}
		if resp.Geodetic != nil {
			out.Geodetic = Geodetic{
				LatitudeDeg:  resp.Geodetic.LatitudeDeg,
				LongitudeDeg: resp.Geodetic.LongitudeDeg,
				AltitudeKM:   resp.Geodetic.AltitudeKM,
			}
		}
		return out, nil
	})
}

func (c *HTTPClient) PropagateTrajectory(ctx context.Context, satelliteID string, tle v1.TLE, start, end time.Time, stepSeconds int64) ([]v1.TrajectoryPoint, error) {
	if stepSeconds <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", stepSeconds)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("trajectory end %s must be after start %s", end, start)
	}
	if points := (end.Unix()-start.Unix())/stepSeconds + 1; points > maxTrajectoryPoints {
		return nil, fmt.Errorf("trajectory would have %d points, max is %d", points, maxTrajectoryPoints)
	}
	req := trajectoryRequest{
		SatelliteID:        satelliteID,
		TLELine1:           tle.Line1,
		TLELine2:           tle.Line2,
		StartTimestampUnix: start.Unix(),
		EndTimestampUnix:   end.Unix(),
		StepSeconds:        stepSeconds,
	}
	key := resilience.CacheKey("trajectory", req)
	if cached, ok := c.trajCache.Get(key); ok {
		return cached.([]v1.TrajectoryPoint), nil
	}
	return resilience.Do(ctx, c.breaker, func(ctx context.Context) ([]v1.TrajectoryPoint, error) {
		var resp trajectoryResponse
		if err := c.post(ctx, "/api/trajectory", req, &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("propagating trajectory for %s, %s", satelliteID, resp.ErrorMessage)
		}
		points := make([]v1.TrajectoryPoint, 0, len(resp.Points))
		for _, p := range resp.Points {
			point := v1.TrajectoryPoint{Timestamp: p.TimestampUnix}
			if p.Position != nil {
				point.Position = v1.Vector3{X: p.Position.XKM, Y: p.Position.YKM, Z: p.Position.ZKM}
			}
			if p.Velocity != nil {
				point.Velocity = &v1.Vector3{X: p.Velocity.VXKMS, Y: p.Velocity.VYKMS, Z: p.Velocity.VZKMS}
			}
			points = append(points, point)
		}
		c.trajCache.SetDefault(key, points)
		return points, nil
	})
}

func (c *HTTPClient) CalculateVisibility(ctx context.Context, satelliteID string, tle v1.TLE, station v1.GroundStation, start, end time.Time) ([]v1.Pass, error) {
	req := visibilityRequest{
		SatelliteID:        satelliteID,
		TLELine1:           tle.Line1,
		TLELine2:           tle.Line2,
		GroundStation:      station,
		StartTimestampUnix: start.Unix(),
		EndTimestampUnix:   end.Unix(),
	}
	return resilience.Do(ctx, c.breaker, func(ctx context.Context) ([]v1.Pass, error) {
		var resp visibilityResponse
		if err := c.post(ctx, "/api/visibility", req, &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("calculating visibility for %s over %s, %s", satelliteID, station.ID, resp.ErrorMessage)
		}
		return resp.Passes, nil
	})
}

func (c *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	return resilience.Do(ctx, c.breaker, func(ctx context.Context) (*HealthStatus, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return nil, err
		}
		var resp healthResponse
		if err := c.do(httpReq, &resp); err != nil {
			return nil, err
		}
		return &HealthStatus{Healthy: resp.Healthy, Version: resp.Version, UptimeSeconds: resp.UptimeSeconds}, nil
	})
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request, %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(req.URL.Path).Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			return errors.NewTimeout(req.URL.Path, err)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calling %s, status %d: %s", req.URL.Path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response, %w", req.URL.Path, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if stderrors.As(err, &t) {
		return t.Timeout()
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}
