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

package orbital

import (
	"context"
	"time"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
)

// Client is the typed surface over the external orbital propagation service.
// Every implementation routes through the orbital breaker.
type Client interface {
	PropagatePosition(ctx context.Context, satelliteID string, tle v1.TLE, at time.Time) (*PositionResult, error)
	PropagateTrajectory(ctx context.Context, satelliteID string, tle v1.TLE, start, end time.Time, stepSeconds int64) ([]v1.TrajectoryPoint, error)
	CalculateVisibility(ctx context.Context, satelliteID string, tle v1.TLE, station v1.GroundStation, start, end time.Time) ([]v1.Pass, error)
	Health(ctx context.Context) (*HealthStatus, error)
}

// Geodetic is a ground-track coordinate.
type Geodetic struct {
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	AltitudeKM   float64 `json:"altitude_km"`
}

// PositionResult is a single propagated state vector.
type PositionResult struct {
	Position v1.Vector3 `json:"position"`
	Velocity v1.Vector3 `json:"velocity"`
	Geodetic Geodetic   `json:"geodetic"`
}

type HealthStatus struct {
	Healthy       bool   `json:"healthy"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Wire shapes for the orbital service's JSON/HTTP contract.

type eciPosition struct {
	XKM float64 `json:"x_km"`
	YKM float64 `json:"y_km"`
	ZKM float64 `json:"z_km"`
}

type eciVelocity struct {
	VXKMS float64 `json:"vx_km_s"`
	VYKMS float64 `json:"vy_km_s"`
	VZKMS float64 `json:"vz_km_s"`
}

type geodeticPosition struct {
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	AltitudeKM   float64 `json:"altitude_km"`
}

type propagateRequest struct {
	SatelliteID   string `json:"satellite_id"`
	TLELine1      string `json:"tle_line1"`
	TLELine2      string `json:"tle_line2"`
	TimestampUnix int64  `json:"timestamp_unix"`
}

type propagateResponse struct {
	SatelliteID   string            `json:"satellite_id"`
	TimestampUnix int64             `json:"timestamp_unix"`
	Position      *eciPosition      `json:"position"`
	Velocity      *eciVelocity      `json:"velocity"`
	Geodetic      *geodeticPosition `json:"geodetic"`
	Success       bool              `json:"success"`
	ErrorMessage  string            `json:"error_message"`
}

type trajectoryRequest struct {
	SatelliteID        string `json:"satellite_id"`
	TLELine1           string `json:"tle_line1"`
	TLELine2           string `json:"tle_line2"`
	StartTimestampUnix int64  `json:"start_timestamp_unix"`
	EndTimestampUnix   int64  `json:"end_timestamp_unix"`
	StepSeconds        int64  `json:"step_seconds"`
}

type trajectoryPoint struct {
	TimestampUnix int64        `json:"timestamp_unix"`
	Position      *eciPosition `json:"position"`
	Velocity      *eciVelocity `json:"velocity,omitempty"`
}

type trajectoryResponse struct {
	SatelliteID  string            `json:"satellite_id"`
	Points       []trajectoryPoint `json:"points"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message"`
}

type visibilityRequest struct {
	SatelliteID        string           `json:"satellite_id"`
	TLELine1           string           `json:"tle_line1"`
	TLELine2           string           `json:"tle_line2"`
	GroundStation      v1.GroundStation `json:"ground_station"`
	StartTimestampUnix int64            `json:"start_timestamp_unix"`
	EndTimestampUnix   int64            `json:"end_timestamp_unix"`
}

type visibilityResponse struct {
	SatelliteID     string    `json:"satellite_id"`
	GroundStationID string    `json:"ground_station_id"`
	Passes          []v1.Pass `json:"passes"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message"`
}

type healthResponse struct {
	Healthy       bool   `json:"healthy"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
