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

// Package coa plans and executes courses of action against detected
// conjunctions.
package coa

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/storage"
	"github.com/stellarops/stellarops/pkg/utils/ids"
)

// Orbital constants. Distances in km, velocities in km/s unless suffixed.
const (
	muEarth       = 398600.4418
	earthRadiusKM = 6371.0

	altitudeChangeKM   = 10.0
	planeChangeDeg     = 0.1
	g0                 = 9.80665
	specificImpulseSec = 300.0
	defaultMassKG      = 500.0
	thrustAccelMS2     = 0.1

	DefaultBurnLeadTime = 12 * time.Hour
	minBurnLeadTime     = 30 * time.Minute
	DefaultMaxDeltaVMS  = 10.0
)

// Feasibility gates by time to closest approach.
const (
	burnMinLead        = 2 * time.Hour
	inclinationMinLead = 4 * time.Hour
	phasingMinPeriods  = 2
)

// Miss-distance improvement per maneuver type, km.
var missImprovementKM = map[v1.COAType]float64{
	v1.COARetrogradeBurn:    5,
	v1.COAProgradeBurn:      5,
	v1.COAPhasing:           8,
	v1.COAInclinationChange: 20,
	v1.COAStationKeeping:    0,
}

var complexityScore = map[v1.COAType]float64{
	v1.COAStationKeeping:    0,
	v1.COAProgradeBurn:      20,
	v1.COARetrogradeBurn:    20,
	v1.COAPhasing:           50,
	v1.COAInclinationChange: 80,
}

// GeneratedPayload is the `coas_generated` event payload.
type GeneratedPayload struct {
	ConjunctionID string    `json:"conjunction_id"`
	COAs          []*v1.COA `json:"coas"`
}

// Planner proposes one course of action per feasible maneuver type for each
// detected conjunction.
type Planner struct {
	clk          clock.Clock
	minter       ids.Minter
	fleet        *fleet.Fleet
	conjunctions storage.ConjunctionStore
	coas         storage.COAStore
	events       *events.Bus
	leadTime     time.Duration
	maxDeltaVMS  float64

	// mu serializes Select so sibling rejection is atomic.
	mu sync.Mutex
}

type PlannerOption func(*Planner)

// WithLeadTime overrides how long before closest approach burns are placed.
func WithLeadTime(d time.Duration) PlannerOption {
	return func(p *Planner) { p.leadTime = d }
}

// WithMaxDeltaV overrides the per-maneuver delta-v budget in m/s.
func WithMaxDeltaV(ms float64) PlannerOption {
	return func(p *Planner) { p.maxDeltaVMS = ms }
}

func NewPlanner(clk clock.Clock, minter ids.Minter, flt *fleet.Fleet, conjunctions storage.ConjunctionStore, coas storage.COAStore, eventBus *events.Bus, opts ...PlannerOption) *Planner {
	p := &Planner{
		clk:          clk,
		minter:       minter,
		fleet:        flt,
		conjunctions: conjunctions,
		coas:         coas,
		events:       eventBus,
		leadTime:     DefaultBurnLeadTime,
		maxDeltaVMS:  DefaultMaxDeltaVMS,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run plans for every newly detected conjunction until the context is done.
func (p *Planner) Run(ctx context.Context) {
	sub := p.events.Subscribe(events.TopicConjunctions)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			if evt.Kind != events.KindConjunctionDetected {
				continue
			}
			cj, ok := evt.Payload.(*v1.Conjunction)
			if !ok {
				continue
			}
			if _, err := p.PlanForConjunction(ctx, cj.ID); err != nil {
				logging.FromContext(ctx).With("conjunction-id", cj.ID).Errorf("planning courses of action, %v", err)
			}
		}
	}
}

// PlanForConjunction generates, persists, and publishes proposals for the
// conjunction, sorted ascending by risk. Planning twice is a no-op.
func (p *Planner) PlanForConjunction(ctx context.Context, conjunctionID string) ([]*v1.COA, error) {
	log := logging.FromContext(ctx).With("conjunction-id", conjunctionID)
	cj, err := p.conjunctions.Get(ctx, conjunctionID)
	if err != nil {
		return nil, err
	}
	existing, err := p.coas.ListByConjunction(ctx, conjunctionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		log.Debugf("conjunction already has %d proposals", len(existing))
		return nil, nil
	}
	sat, err := p.fleet.GetState(cj.AssetID)
	if err != nil {
		log.Warnf("no satellite linkage for conjunction, skipping planning")
		return nil, nil
	}

	now := p.clk.Now().UTC()
	timeToTCA := cj.TCA.Sub(now)
	orbit := orbitFromPosition(assetPosition(cj, sat))
	var proposals []*v1.COA
	for _, typ := range v1.COATypes {
		if !feasible(typ, timeToTCA, orbit) {
			continue
		}
		coa := p.propose(cj, sat, typ, orbit, timeToTCA, now)
		if coa.DeltaVMS > p.maxDeltaVMS {
			log.With("coa-id", coa.ID, "type", string(typ), "delta-v-ms", fmt.Sprintf("%.2f", coa.DeltaVMS)).
				Warnf("proposal exceeds the %.1f m/s delta-v budget", p.maxDeltaVMS)
		}
		proposals = append(proposals, coa)
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].RiskScore < proposals[j].RiskScore })
	for _, coa := range proposals {
		if err := p.coas.Insert(ctx, coa); err != nil {
			return nil, fmt.Errorf("persisting proposal %s, %w", coa.ID, err)
		}
		proposedTotal.WithLabelValues(string(coa.Type)).Inc()
	}
	log.With("count", len(proposals)).Infof("generated courses of action")
	p.events.Publish(events.TopicCOA, events.Event{
		Kind:      events.KindCOAsGenerated,
		Payload:   &GeneratedPayload{ConjunctionID: conjunctionID, COAs: proposals},
		Timestamp: now,
	})
	return proposals, nil
}

// Select commits one proposal and atomically rejects its sibling proposals.
func (p *Planner) Select(ctx context.Context, coaID string) (*v1.COA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	coa, err := p.coas.Get(ctx, coaID)
	if err != nil {
		return nil, err
	}
	if !coa.Status.CanTransition(v1.COASelected) {
		return nil, errors.NewInvalidState("coa", coaID, string(coa.Status), "only proposed courses of action can be selected")
	}
	siblings, err := p.coas.ListByConjunction(ctx, coa.ConjunctionID)
	if err != nil {
		return nil, err
	}
	// Siblings are rejected before the selection is committed. If any
	// rejection fails the chosen proposal stays proposed and the caller can
	// retry, so a conjunction never carries two selectable proposals past a
	// successful Select.
	now := p.clk.Now().UTC()
	var rejectErr error
	for _, sibling := range siblings {
		if sibling.ID == coa.ID || sibling.Status != v1.COAProposed {
			continue
		}
		sibling.Status = v1.COARejected
		sibling.UpdatedAt = now
		if err := p.coas.Update(ctx, sibling); err != nil {
			rejectErr = multierr.Append(rejectErr, fmt.Errorf("rejecting sibling proposal %s, %w", sibling.ID, err))
		}
	}
	if rejectErr != nil {
		return nil, rejectErr
	}
	coa.Status = v1.COASelected
	coa.UpdatedAt = now
	if err := p.coas.Update(ctx, coa); err != nil {
		return nil, err
	}
	p.events.Publish(events.TopicCOA, events.Event{Kind: events.KindCOASelected, Payload: coa, Timestamp: now})
	logging.FromContext(ctx).With("coa-id", coaID, "type", string(coa.Type)).Infof("selected course of action")
	return coa, nil
}

// Delete removes a proposal. Anything past proposed is part of the record and
// cannot be deleted.
func (p *Planner) Delete(ctx context.Context, coaID string) error {
	coa, err := p.coas.Get(ctx, coaID)
	if err != nil {
		return err
	}
	if coa.Status != v1.COAProposed {
		return errors.NewInvalidState("coa", coaID, string(coa.Status), "only proposed courses of action can be deleted")
	}
	return p.coas.Delete(ctx, coaID)
}

func (p *Planner) propose(cj *v1.Conjunction, sat *v1.Satellite, typ v1.COAType, orbit v1.OrbitSnapshot, timeToTCA time.Duration, now time.Time) *v1.COA {
	mass := sat.MassKG
	if mass <= 0 {
		mass = defaultMassKG
	}
	dvKMS := deltaV(typ, orbit)
	dvMS := dvKMS * 1000
	fuelKG := mass * (1 - math.Exp(-dvMS/(g0*specificImpulseSec)))
	improvement := missImprovementKM[typ]

	burnStart := cj.TCA.Add(-p.leadTime)
	if earliest := now.Add(minBurnLeadTime); burnStart.Before(earliest) {
		burnStart = earliest
	}
	return &v1.COA{
		ID:                      p.minter.New(ids.COAPrefix),
		ConjunctionID:           cj.ID,
		SatelliteID:             sat.ID,
		Type:                    typ,
		DeltaVMS:                dvMS,
		BurnDirection:           burnDirection(typ, assetPosition(cj, sat)),
		BurnStartTime:           burnStart,
		BurnDurationSeconds:     dvMS / thrustAccelMS2,
		EstimatedFuelKG:         fuelKG,
		PredictedMissDistanceKM: cj.MissDistanceKM + improvement,
		PreBurnOrbit:            orbit,
		PostBurnOrbit:           postBurnOrbit(typ, orbit),
		RiskScore:               riskScore(typ, fuelKG, timeToTCA, improvement),
		Status:                  v1.COAProposed,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func feasible(typ v1.COAType, timeToTCA time.Duration, orbit v1.OrbitSnapshot) bool {
	switch typ {
	case v1.COARetrogradeBurn, v1.COAProgradeBurn:
		return timeToTCA >= burnMinLead
	case v1.COAInclinationChange:
		return timeToTCA >= inclinationMinLead
	case v1.COAPhasing:
		return timeToTCA >= time.Duration(phasingMinPeriods*orbitalPeriod(orbit.SemiMajorAxisKM))*time.Second
	default:
		return true
	}
}

// visViva is the orbital speed at radius r on an orbit with semi-major axis a.
func visViva(r, a float64) float64 {
	return math.Sqrt(muEarth * (2/r - 1/a))
}

func orbitalPeriod(aKM float64) float64 {
	return 2 * math.Pi * math.Sqrt(math.Pow(aKM, 3)/muEarth)
}

// deltaV is the maneuver cost in km/s.
func deltaV(typ v1.COAType, orbit v1.OrbitSnapshot) float64 {
	a := orbit.SemiMajorAxisKM
	v := visViva(a, a)
	switch typ {
	case v1.COARetrogradeBurn:
		return math.Abs(v - visViva(a-altitudeChangeKM, a-altitudeChangeKM))
	case v1.COAProgradeBurn:
		return math.Abs(v - visViva(a+altitudeChangeKM, a+altitudeChangeKM))
	case v1.COAInclinationChange:
		return 2 * v * math.Sin(planeChangeDeg*math.Pi/180/2)
	case v1.COAPhasing:
		// Raise and restore, two altitude-change burns.
		return 2 * math.Abs(v-visViva(a+altitudeChangeKM, a+altitudeChangeKM))
	default:
		return 0
	}
}

func postBurnOrbit(typ v1.COAType, orbit v1.OrbitSnapshot) v1.OrbitSnapshot {
	out := orbit
	switch typ {
	case v1.COARetrogradeBurn:
		out.SemiMajorAxisKM -= altitudeChangeKM
	case v1.COAProgradeBurn:
		out.SemiMajorAxisKM += altitudeChangeKM
	case v1.COAInclinationChange:
		out.InclinationDeg += planeChangeDeg
	}
	return out
}

// burnDirection approximates the thrust axis in the ECI frame. Without
// velocity data the along-track direction is taken perpendicular to the
// position vector in the equatorial plane.
func burnDirection(typ v1.COAType, position v1.Vector3) v1.Vector3 {
	alongTrack := v1.Vector3{X: -position.Y, Y: position.X}.Unit()
	switch typ {
	case v1.COARetrogradeBurn:
		return alongTrack.Scale(-1)
	case v1.COAProgradeBurn, v1.COAPhasing:
		return alongTrack
	case v1.COAInclinationChange:
		return v1.Vector3{Z: 1}
	default:
		return v1.Vector3{}
	}
}

// riskScore is 0 best, 100 worst.
func riskScore(typ v1.COAType, fuelKG float64, timeToTCA time.Duration, improvementKM float64) float64 {
	fuel := math.Min(fuelKG/50*100, 100)

	var timeScore float64
	switch {
	case timeToTCA < time.Hour:
		timeScore = 100
	case timeToTCA < 2*time.Hour:
		timeScore = 75
	case timeToTCA < 4*time.Hour:
		timeScore = 50
	case timeToTCA < 12*time.Hour:
		timeScore = 25
	default:
		timeScore = 10
	}

	var improvementScore float64
	switch {
	case improvementKM >= 20:
		improvementScore = 0
	case improvementKM >= 10:
		improvementScore = 20
	case improvementKM >= 5:
		improvementScore = 40
	case improvementKM >= 1:
		improvementScore = 60
	case improvementKM > 0:
		improvementScore = 80
	default:
		improvementScore = 100
	}

	return 0.30*fuel + 0.25*timeScore + 0.30*improvementScore + 0.15*complexityScore[typ]
}

func assetPosition(cj *v1.Conjunction, sat *v1.Satellite) v1.Vector3 {
	if cj.AssetPositionAtTCA.Norm() > 0 {
		return cj.AssetPositionAtTCA
	}
	return sat.Position
}

// orbitFromPosition derives a circular-orbit snapshot from a position sample.
func orbitFromPosition(position v1.Vector3) v1.OrbitSnapshot {
	r := position.Norm()
	if r == 0 {
		r = earthRadiusKM + 500
	}
	inclination := 0.0
	if r > 0 {
		inclination = math.Asin(math.Abs(position.Z)/r) * 180 / math.Pi
	}
	return v1.OrbitSnapshot{SemiMajorAxisKM: r, Eccentricity: 0, InclinationDeg: inclination}
}
