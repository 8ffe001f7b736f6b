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

import (
	"time"
)

type COAType string

const (
	COARetrogradeBurn    COAType = "retrograde_burn"
	COAProgradeBurn      COAType = "prograde_burn"
	COAInclinationChange COAType = "inclination_change"
	COAPhasing           COAType = "phasing"
	COAStationKeeping    COAType = "station_keeping"
)

// COATypes lists every maneuver type the planner proposes.
var COATypes = []COAType{
	COARetrogradeBurn,
	COAProgradeBurn,
	COAInclinationChange,
	COAPhasing,
	COAStationKeeping,
}

type COAStatus string

const (
	COAProposed  COAStatus = "proposed"
	COASelected  COAStatus = "selected"
	COARejected  COAStatus = "rejected"
	COAExecuting COAStatus = "executing"
	COACompleted COAStatus = "completed"
	COAFailed    COAStatus = "failed"
)

// OrbitSnapshot captures classical elements before or after a burn.
type OrbitSnapshot struct {
	SemiMajorAxisKM float64 `json:"semi_major_axis_km"`
	Eccentricity    float64 `json:"eccentricity"`
	InclinationDeg  float64 `json:"inclination_deg"`
}

// COA is a candidate course of action responding to a conjunction.
type COA struct {
	ID                     string        `json:"id"`
	ConjunctionID          string        `json:"conjunction_id"`
	SatelliteID            string        `json:"satellite_id"`
	Type                   COAType       `json:"type"`
	DeltaVMS               float64       `json:"delta_v_m_s"`
	BurnDirection          Vector3       `json:"burn_direction"`
	BurnStartTime          time.Time     `json:"burn_start_time"`
	BurnDurationSeconds    float64       `json:"burn_duration_seconds"`
	EstimatedFuelKG        float64       `json:"estimated_fuel_kg"`
	PredictedMissDistanceKM float64      `json:"predicted_miss_distance_km"`
	PreBurnOrbit           OrbitSnapshot `json:"pre_burn_orbit"`
	PostBurnOrbit          OrbitSnapshot `json:"post_burn_orbit"`
	RiskScore              float64       `json:"risk_score"`
	Status                 COAStatus     `json:"status"`
	FailureReason          string        `json:"failure_reason,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

var coaTransitions = map[COAStatus][]COAStatus{
	COAProposed:  {COASelected, COARejected},
	COASelected:  {COAExecuting, COARejected},
	COAExecuting: {COACompleted, COAFailed, COASelected},
	COACompleted: {},
	COAFailed:    {},
	COARejected:  {},
}

// CanTransition reports whether a COA status change is legal. The executing →
// selected edge exists only for rollback when mission creation fails partway.
func (s COAStatus) CanTransition(next COAStatus) bool {
	for _, allowed := range coaTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Committed reports whether the COA occupies the single selected/executing/
// completed slot its conjunction allows.
func (s COAStatus) Committed() bool {
	return s == COASelected || s == COAExecuting || s == COACompleted
}
