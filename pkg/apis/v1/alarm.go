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
	"strings"
	"time"
)

type AlarmSeverity string

const (
	SeverityCritical AlarmSeverity = "critical"
	SeverityMajor    AlarmSeverity = "major"
	SeverityMinor    AlarmSeverity = "minor"
	SeverityWarning  AlarmSeverity = "warning"
	SeverityInfo     AlarmSeverity = "info"
)

type AlarmStatus string

const (
	AlarmActive       AlarmStatus = "active"
	AlarmAcknowledged AlarmStatus = "acknowledged"
	AlarmResolved     AlarmStatus = "resolved"
)

// alarmStatusRank orders alarm statuses so that transitions can only advance.
var alarmStatusRank = map[AlarmStatus]int{
	AlarmActive:       0,
	AlarmAcknowledged: 1,
	AlarmResolved:     2,
}

// Advances reports whether moving from s to next is a forward transition.
func (s AlarmStatus) Advances(next AlarmStatus) bool {
	return alarmStatusRank[next] > alarmStatusRank[s]
}

// Alarm is a persisted operational alarm. Source follows the `kind:id`
// convention, e.g. `satellite:SAT-1` or `mission:msn-42`.
type Alarm struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Severity       AlarmSeverity  `json:"severity"`
	Message        string         `json:"message"`
	Source         string         `json:"source"`
	Details        map[string]any `json:"details,omitempty"`
	Status         AlarmStatus    `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

// SourceKind extracts the `kind` half of a `kind:id` source, or the whole
// source when it carries no id.
func SourceKind(source string) string {
	if kind, _, ok := strings.Cut(source, ":"); ok {
		return kind
	}
	return source
}

// SatelliteSource and friends build conventional alarm sources.
func SatelliteSource(id string) string { return "satellite:" + id }

func MissionSource(id string) string { return "mission:" + id }

func GroundStationSource(id string) string { return "ground_station:" + id }
