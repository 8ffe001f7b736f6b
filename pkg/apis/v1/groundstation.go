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

package v1

// GroundStation describes a station a satellite can contact, in the shape the
// orbital service's visibility endpoint expects.
type GroundStation struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	LatitudeDeg     float64 `json:"latitude_deg"`
	LongitudeDeg    float64 `json:"longitude_deg"`
	AltitudeM       float64 `json:"altitude_m"`
	MinElevationDeg float64 `json:"min_elevation_deg"`
	Online          bool    `json:"online"`
}

// Pass is a visibility window between a satellite and a ground station.
type Pass struct {
	AOSTimestamp          int64   `json:"aos_timestamp"`
	LOSTimestamp          int64   `json:"los_timestamp"`
	MaxElevationTimestamp int64   `json:"max_elevation_timestamp"`
	MaxElevationDeg       float64 `json:"max_elevation_deg"`
	AOSAzimuthDeg         float64 `json:"aos_azimuth_deg"`
	LOSAzimuthDeg         float64 `json:"los_azimuth_deg"`
	DurationSeconds       int64   `json:"duration_seconds"`
}
