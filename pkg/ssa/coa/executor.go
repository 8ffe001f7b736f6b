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

package coa

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	"github.com/stellarops/stellarops/pkg/alarms"
	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/missions"
	"github.com/stellarops/stellarops/pkg/storage"
)

const (
	prepLeadTime       = 30 * time.Minute
	burnDeadlineSlack  = 300 * time.Second
	verifyStartDelay   = 60 * time.Second
	verifyWindow       = time.Hour
	verifyDeviationMax = 0.01
)

// Executor turns a selected course of action into its maneuver mission chain
// and tracks the chain to completion.
type Executor struct {
	clk       clock.Clock
	coas      storage.COAStore
	missions  storage.MissionStore
	scheduler *missions.Scheduler
	fleet     *fleet.Fleet
	alarms    *alarms.Bus
	events    *events.Bus
}

func NewExecutor(clk clock.Clock, coas storage.COAStore, missionStore storage.MissionStore, scheduler *missions.Scheduler, flt *fleet.Fleet, alarmBus *alarms.Bus, eventBus *events.Bus) *Executor {
	return &Executor{
		clk:       clk,
		coas:      coas,
		missions:  missionStore,
		scheduler: scheduler,
		fleet:     flt,
		alarms:    alarmBus,
		events:    eventBus,
	}
}

// ExecuteCOA transitions a selected course of action to executing and
// enqueues its mission chain. Any enqueue failure unwinds created missions
// and reverts the course of action to selected.
func (e *Executor) ExecuteCOA(ctx context.Context, coaID string) (*v1.COA, []*v1.Mission, error) {
	log := logging.FromContext(ctx).With("coa-id", coaID)
	coa, err := e.coas.Get(ctx, coaID)
	if err != nil {
		return nil, nil, err
	}
	if !coa.Status.CanTransition(v1.COAExecuting) {
		return nil, nil, errors.NewInvalidState("coa", coaID, string(coa.Status), "only selected courses of action can execute")
	}
	now := e.clk.Now().UTC()
	coa.Status = v1.COAExecuting
	coa.UpdatedAt = now
	if err := e.coas.Update(ctx, coa); err != nil {
		return nil, nil, err
	}

	// Station keeping commands no burn; the course of action completes
	// immediately.
	if coa.Type == v1.COAStationKeeping {
		coa.Status = v1.COACompleted
		coa.UpdatedAt = now
		if err := e.coas.Update(ctx, coa); err != nil {
			return nil, nil, err
		}
		executedTotal.WithLabelValues("completed").Inc()
		e.publish(events.KindCOACompleted, coa)
		log.Infof("station keeping requires no maneuver, completed")
		return coa, nil, nil
	}

	var created []*v1.Mission
	for _, spec := range e.missionChain(coa) {
		if _, err := e.scheduler.Enqueue(ctx, spec); err != nil {
			e.unwind(ctx, coa, created)
			return nil, nil, fmt.Errorf("enqueuing %s mission, %w", spec.Type, err)
		}
		created = append(created, spec)
	}
	log.With("missions", len(created)).Infof("executing course of action")
	return coa, created, nil
}

// missionChain builds the pre-burn, burn, and verification missions in
// execution order.
func (e *Executor) missionChain(coa *v1.COA) []*v1.Mission {
	burnStart := coa.BurnStartTime
	burnDuration := time.Duration(coa.BurnDurationSeconds * float64(time.Second))
	prepStart := burnStart.Add(-prepLeadTime)
	burnDeadline := burnStart.Add(burnDuration).Add(burnDeadlineSlack)
	verifyStart := burnStart.Add(burnDuration).Add(verifyStartDelay)
	verifyDeadline := verifyStart.Add(verifyWindow)

	return []*v1.Mission{
		{
			SatelliteID:    coa.SatelliteID,
			COAID:          coa.ID,
			Type:           v1.MissionTypeManeuverPrep,
			Priority:       v1.PriorityHigh,
			ScheduledStart: &prepStart,
			Deadline:       &burnStart,
			RequiredEnergy: 10,
			RequiredMemory: 5,
			MaxRetries:     2,
			Payload: map[string]any{
				"coa_id":             coa.ID,
				"target_delta_v_m_s": coa.DeltaVMS,
			},
		},
		{
			SatelliteID:    coa.SatelliteID,
			COAID:          coa.ID,
			Type:           v1.MissionTypeManeuverBurn,
			Priority:       v1.PriorityCritical,
			ScheduledStart: &burnStart,
			Deadline:       &burnDeadline,
			RequiredEnergy: 30,
			MaxRetries:     1,
			Payload: map[string]any{
				"coa_id":                coa.ID,
				"delta_v_m_s":           coa.DeltaVMS,
				"burn_direction":        coa.BurnDirection,
				"burn_duration_seconds": coa.BurnDurationSeconds,
				"estimated_fuel_kg":     coa.EstimatedFuelKG,
			},
		},
		{
			SatelliteID:       coa.SatelliteID,
			COAID:             coa.ID,
			Type:              v1.MissionTypeManeuverVerify,
			Priority:          v1.PriorityHigh,
			ScheduledStart:    &verifyStart,
			Deadline:          &verifyDeadline,
			RequiredEnergy:    15,
			RequiredBandwidth: 1,
			MaxRetries:        2,
			Payload: map[string]any{
				"coa_id": coa.ID,
			},
		},
	}
}

// unwind cancels any missions created so far and returns the course of
// action to selected.
func (e *Executor) unwind(ctx context.Context, coa *v1.COA, created []*v1.Mission) {
	log := logging.FromContext(ctx).With("coa-id", coa.ID)
	var errs error
	for _, m := range created {
		errs = multierr.Append(errs, e.scheduler.Cancel(ctx, m.ID))
	}
	if errs != nil {
		log.Warnf("unwinding mission chain, %v", errs)
	}
	coa.Status = v1.COASelected
	coa.UpdatedAt = e.clk.Now().UTC()
	if err := e.coas.Update(ctx, coa); err != nil {
		log.Errorf("reverting course of action to selected, %v", err)
	}
}

// HandleMissionComplete advances the course of action when its verification
// mission lands. Other mission types are waypoints and need no action.
func (e *Executor) HandleMissionComplete(ctx context.Context, m *v1.Mission) {
	if m.COAID == "" || m.Type != v1.MissionTypeManeuverVerify {
		return
	}
	log := logging.FromContext(ctx).With("coa-id", m.COAID, "mission-id", m.ID)
	coa, err := e.coas.Get(ctx, m.COAID)
	if err != nil {
		log.Errorf("loading course of action, %v", err)
		return
	}
	if !coa.Status.CanTransition(v1.COACompleted) {
		log.Warnf("course of action in status %q, ignoring verification result", coa.Status)
		return
	}
	now := e.clk.Now().UTC()
	coa.Status = v1.COACompleted
	coa.UpdatedAt = now
	if err := e.coas.Update(ctx, coa); err != nil {
		log.Errorf("persisting completion, %v", err)
		return
	}
	executedTotal.WithLabelValues("completed").Inc()
	e.verifyPostBurn(ctx, coa)
	e.publish(events.KindCOACompleted, coa)
	log.Infof("course of action completed")
}

// HandleMissionFailure fails the course of action when any chain mission
// permanently fails.
func (e *Executor) HandleMissionFailure(ctx context.Context, m *v1.Mission, reason string) {
	if m.COAID == "" {
		return
	}
	log := logging.FromContext(ctx).With("coa-id", m.COAID, "mission-id", m.ID)
	coa, err := e.coas.Get(ctx, m.COAID)
	if err != nil {
		log.Errorf("loading course of action, %v", err)
		return
	}
	if !coa.Status.CanTransition(v1.COAFailed) {
		return
	}
	coa.Status = v1.COAFailed
	coa.FailureReason = reason
	coa.UpdatedAt = e.clk.Now().UTC()
	if err := e.coas.Update(ctx, coa); err != nil {
		log.Errorf("persisting failure, %v", err)
		return
	}
	executedTotal.WithLabelValues("failed").Inc()
	e.alarms.Raise(ctx, alarms.Spec{
		Type:     "coa_execution_failed",
		Severity: v1.SeverityMajor,
		Message:  fmt.Sprintf("course of action %s failed: %s", coa.ID, reason),
		Source:   v1.SatelliteSource(coa.SatelliteID),
		Details:  map[string]any{"coa_id": coa.ID, "mission_id": m.ID},
	})
	e.publish(events.KindCOAFailed, coa)
	log.Errorf("course of action failed, %s", reason)
}

// verifyPostBurn compares the expected post-burn orbit against elements
// derived from the satellite's current state. A deviation above 1% calls for
// a correction maneuver, which planning handles separately.
func (e *Executor) verifyPostBurn(ctx context.Context, coa *v1.COA) {
	log := logging.FromContext(ctx).With("coa-id", coa.ID)
	sat, err := e.fleet.GetState(coa.SatelliteID)
	if err != nil {
		log.Warnf("satellite unavailable for post-burn verification, %v", err)
		return
	}
	actual := orbitFromPosition(sat.Position)
	deviation := rmsDeviation(coa.PostBurnOrbit, actual)
	if deviation > verifyDeviationMax {
		log.With("deviation", fmt.Sprintf("%.4f", deviation)).
			Warnf("post-burn orbit deviates from prediction, requesting correction course of action")
		return
	}
	log.With("deviation", fmt.Sprintf("%.4f", deviation)).Debugf("post-burn orbit verified")
}

// rmsDeviation is the root-mean-square relative deviation across semi-major
// axis, eccentricity, and inclination. Zero-valued expectations fall back to
// absolute deviation.
func rmsDeviation(expected, actual v1.OrbitSnapshot) float64 {
	devs := []float64{
		relativeDeviation(expected.SemiMajorAxisKM, actual.SemiMajorAxisKM),
		relativeDeviation(expected.Eccentricity, actual.Eccentricity),
		relativeDeviation(expected.InclinationDeg, actual.InclinationDeg),
	}
	sum := 0.0
	for _, d := range devs {
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(devs)))
}

func relativeDeviation(expected, actual float64) float64 {
	if expected == 0 {
		return math.Abs(actual - expected)
	}
	return math.Abs(actual-expected) / math.Abs(expected)
}

// ExecutionStatus aggregates the mission chain behind a course of action.
type ExecutionStatus struct {
	COAID           string          `json:"coa_id"`
	Status          v1.COAStatus    `json:"status"`
	Missions        []MissionStatus `json:"missions"`
	ProgressPercent float64         `json:"progress_percent"`
}

type MissionStatus struct {
	ID     string           `json:"id"`
	Type   string           `json:"type"`
	Status v1.MissionStatus `json:"status"`
}

// GetExecutionStatus reports chain progress as the fraction of completed
// missions. A station-keeping course of action has no chain and reads 100%
// once completed.
func (e *Executor) GetExecutionStatus(ctx context.Context, coaID string) (*ExecutionStatus, error) {
	coa, err := e.coas.Get(ctx, coaID)
	if err != nil {
		return nil, err
	}
	chain, err := e.missions.ListByCOA(ctx, coaID)
	if err != nil {
		return nil, err
	}
	sort.Slice(chain, func(i, j int) bool {
		a, b := chain[i].ScheduledStart, chain[j].ScheduledStart
		if a != nil && b != nil {
			return a.Before(*b)
		}
		return b == nil && a != nil
	})
	out := &ExecutionStatus{COAID: coaID, Status: coa.Status}
	completed := 0
	for _, m := range chain {
		out.Missions = append(out.Missions, MissionStatus{ID: m.ID, Type: m.Type, Status: m.Status})
		if m.Status == v1.MissionCompleted {
			completed++
		}
	}
	switch {
	case len(chain) > 0:
		out.ProgressPercent = float64(completed) / float64(len(chain)) * 100
	case coa.Status == v1.COACompleted:
		out.ProgressPercent = 100
	}
	return out, nil
}

func (e *Executor) publish(kind string, coa *v1.COA) {
	cp := *coa
	e.events.Publish(events.TopicCOAUpdates, events.Event{Kind: kind, Payload: &cp, Timestamp: e.clk.Now().UTC()})
}
