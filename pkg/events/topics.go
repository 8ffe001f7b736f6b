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

package events

const (
	TopicAlarmsAll    = "alarms:all"
	TopicConjunctions = "ssa:conjunctions"
	TopicCOA          = "ssa:coa"
	TopicCOAUpdates   = "coa:updates"
	TopicMissionsAll  = "missions:*"
)

// AlarmsTopic returns the per-source alarm topic, e.g. `alarms:satellite:SAT-1`.
func AlarmsTopic(source string) string {
	return "alarms:" + source
}

// MissionTopic returns the per-mission topic, e.g. `missions:msn-42`.
func MissionTopic(missionID string) string {
	return "missions:" + missionID
}

// Event kinds published on the topics above.
const (
	KindAlarmRaised          = "alarm_raised"
	KindAlarmAcknowledged    = "alarm_acknowledged"
	KindAlarmResolved        = "alarm_resolved"
	KindConjunctionDetected  = "conjunction_detected"
	KindConjunctionExpired   = "conjunction_expired"
	KindCOAsGenerated        = "coas_generated"
	KindCOASelected          = "coa_selected"
	KindCOACompleted         = "coa_completed"
	KindCOAFailed            = "coa_failed"
	KindMissionScheduled     = "mission_scheduled"
	KindMissionStarted       = "mission_started"
	KindMissionCompleted     = "mission_completed"
	KindMissionFailed        = "mission_failed"
	KindMissionCanceled      = "mission_canceled"
)
