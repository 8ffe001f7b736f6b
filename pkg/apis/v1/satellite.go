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

type SatelliteMode string

const (
	ModeNominal  SatelliteMode = "nominal"
	ModeSafe     SatelliteMode = "safe"
	ModeSurvival SatelliteMode = "survival"
)

// Mode derivation thresholds. Entry and exit thresholds differ so a satellite
// hovering around a boundary doesn't flap between modes.
const (
	SurvivalEnergyThreshold     = 5.0
	SafeEnergyThreshold         = 20.0
	SurvivalRecoveryEnergyLevel = 10.0
	NominalRecoveryEnergyLevel  = 30.0
)

// Satellite is the state owned by a single satellite actor. It is authoritative
// in memory and periodically checkpointed to the satellite store.
type Satellite struct {
	ID           string        `json:"id"`
	Mode         SatelliteMode `json:"mode"`
	Energy       float64       `json:"energy"`
	MemoryUsed   float64       `json:"memory_used"`
	Position     Vector3       `json:"position"`
	TLE          *TLE          `json:"tle,omitempty"`
	MassKG       float64       `json:"mass_kg"`
	LastUpdated  time.Time     `json:"last_updated"`
	TLEUpdatedAt *time.Time    `json:"tle_updated_at,omitempty"`
}

// TLE is a two-line element set for a tracked object or protected asset.
type TLE struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

func (t *TLE) Valid() bool {
	return t != nil && t.Line1 != "" && t.Line2 != ""
}

// DeriveMode applies the hysteretic mode transition rules for the given energy
// level. The current mode is required because recovery thresholds are higher
// than entry thresholds.
func DeriveMode(current SatelliteMode, energy float64) SatelliteMode {
	switch {
	case energy < SurvivalEnergyThreshold:
		return ModeSurvival
	case current == ModeSurvival:
		if energy >= SurvivalRecoveryEnergyLevel {
			return ModeSafe
		}
		return ModeSurvival
	case energy < SafeEnergyThreshold:
		return ModeSafe
	case current == ModeSafe:
		if energy >= NominalRecoveryEnergyLevel {
			return ModeNominal
		}
		return ModeSafe
	default:
		return ModeNominal
	}
}

// ClampResource bounds energy and memory levels to their valid percent range.
func ClampResource(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
