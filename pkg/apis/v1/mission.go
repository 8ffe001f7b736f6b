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

type MissionPriority string

const (
	PriorityCritical MissionPriority = "critical"
	PriorityHigh     MissionPriority = "high"
	PriorityNormal   MissionPriority = "normal"
	PriorityLow      MissionPriority = "low"
)

// Rank orders priorities for scheduling; lower ranks schedule first.
func (p MissionPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	default:
		return 3
	}
}

type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionScheduled MissionStatus = "scheduled"
	MissionRunning   MissionStatus = "running"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
	MissionCanceled  MissionStatus = "canceled"
)

var missionTransitions = map[MissionStatus][]MissionStatus{
	MissionPending:   {MissionScheduled, MissionCanceled},
	MissionScheduled: {MissionRunning, MissionCanceled},
	MissionRunning:   {MissionCompleted, MissionFailed},
	// failed → scheduled is the retry edge.
	MissionFailed:    {MissionScheduled},
	MissionCompleted: {},
	MissionCanceled:  {},
}

// CanTransition reports whether a mission status change is legal. Running
// missions can never be canceled.
func (s MissionStatus) CanTransition(next MissionStatus) bool {
	for _, allowed := range missionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are expected. A failed
// mission is terminal only once its retry budget is exhausted, which the
// executor decides.
func (s MissionStatus) Terminal() bool {
	return s == MissionCompleted || s == MissionCanceled
}

// Cancelable reports whether a cooperative cancel is still legal.
func (s MissionStatus) Cancelable() bool {
	return s == MissionPending || s == MissionScheduled
}

// Well-known mission types. Type is an open string; these are the ones the
// validator and COA executor know about.
const (
	MissionTypeDownlink       = "downlink"
	MissionTypeImaging        = "imaging"
	MissionTypeOrbitAdjust    = "orbit_adjust"
	MissionTypeManeuverPrep   = "maneuver_prep"
	MissionTypeManeuverBurn   = "maneuver_burn"
	MissionTypeManeuverVerify = "maneuver_verify"
)

// Mission is a schedulable unit of work against a single satellite.
type Mission struct {
	ID                string          `json:"id"`
	SatelliteID       string          `json:"satellite_id"`
	COAID             string          `json:"coa_id,omitempty"`
	Type              string          `json:"type"`
	Priority          MissionPriority `json:"priority"`
	Status            MissionStatus   `json:"status"`
	ScheduledStart    *time.Time      `json:"scheduled_start,omitempty"`
	Deadline          *time.Time      `json:"deadline,omitempty"`
	RequiredEnergy    float64         `json:"required_energy"`
	RequiredMemory    float64         `json:"required_memory"`
	RequiredBandwidth float64         `json:"required_bandwidth"`
	Payload           map[string]any  `json:"payload,omitempty"`
	RetryCount        int             `json:"retry_count"`
	MaxRetries        int             `json:"max_retries"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}
