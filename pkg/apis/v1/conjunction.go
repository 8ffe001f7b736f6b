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

type ConjunctionSeverity string

const (
	ConjunctionCritical ConjunctionSeverity = "critical"
	ConjunctionHigh     ConjunctionSeverity = "high"
	ConjunctionMedium   ConjunctionSeverity = "medium"
	ConjunctionLow      ConjunctionSeverity = "low"
)

type ConjunctionStatus string

const (
	ConjunctionPredicted  ConjunctionStatus = "predicted"
	ConjunctionActive     ConjunctionStatus = "active"
	ConjunctionMonitoring ConjunctionStatus = "monitoring"
	ConjunctionResolved   ConjunctionStatus = "resolved"
	ConjunctionExpired    ConjunctionStatus = "expired"
)

// Conjunction is a predicted close approach between a protected asset and a
// catalog object.
type Conjunction struct {
	ID                   string              `json:"id"`
	AssetID              string              `json:"asset_id"`
	SecondaryObjectID    string              `json:"secondary_object_id"`
	TCA                  time.Time           `json:"tca"`
	MissDistanceKM       float64             `json:"miss_distance_km"`
	RelativeVelocityKMS  float64             `json:"relative_velocity_km_s"`
	CollisionProbability *float64            `json:"collision_probability,omitempty"`
	Severity             ConjunctionSeverity `json:"severity"`
	Status               ConjunctionStatus   `json:"status"`
	AssetPositionAtTCA   Vector3             `json:"asset_position_at_tca"`
	ObjectPositionAtTCA  Vector3             `json:"object_position_at_tca"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// SeverityForMissDistance is the deterministic severity classification:
// critical below 1 km, high below 5 km, medium below 10 km, low otherwise.
func SeverityForMissDistance(missKM float64) ConjunctionSeverity {
	switch {
	case missKM < 1:
		return ConjunctionCritical
	case missKM < 5:
		return ConjunctionHigh
	case missKM < 10:
		return ConjunctionMedium
	default:
		return ConjunctionLow
	}
}

// Live reports whether the conjunction still demands attention.
func (c *Conjunction) Live() bool {
	switch c.Status {
	case ConjunctionResolved, ConjunctionExpired:
		return false
	}
	return true
}
