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

// Package missions owns mission admission and execution: the Validator gates
// what may enter the queue, the Scheduler orders it, and the Executor runs it.
package missions

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/orbital"
)

const (
	minDeadlineLead      = 5 * time.Minute
	criticalDeadlineMax  = 24 * time.Hour
	orbitAdjustMinEnergy = 20.0
)

// StationProvider surfaces the ground stations known to the deployment.
type StationProvider interface {
	Stations() []v1.GroundStation
}

// StaticStations is the fixed-list StationProvider used by configuration and
// tests.
type StaticStations []v1.GroundStation

func (s StaticStations) Stations() []v1.GroundStation { return s }

// ValidateOptions tune a validation pass.
type ValidateOptions struct {
	// Strict doubles the energy requirement to leave execution headroom.
	Strict bool
}

type Validator struct {
	clk      clock.Clock
	fleet    *fleet.Fleet
	stations StationProvider
	orbital  orbital.Client
}

// NewValidator builds a validator. The orbital client is optional; without it
// downlink reachability falls back to the static station online flag.
func NewValidator(clk clock.Clock, flt *fleet.Fleet, stations StationProvider, orbitalClient orbital.Client) *Validator {
	return &Validator{clk: clk, fleet: flt, stations: stations, orbital: orbitalClient}
}

// Validate checks a mission for admission. All failures are collected so the
// caller sees every problem at once.
func (v *Validator) Validate(ctx context.Context, m *v1.Mission, opts ValidateOptions) error {
	var errs error
	sat, err := v.fleet.GetState(m.SatelliteID)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("satellite %q is not started", m.SatelliteID))
	} else {
		errs = multierr.Append(errs, v.validateResources(m, sat, opts))
	}
	errs = multierr.Append(errs, v.validateDeadline(ctx, m))
	errs = multierr.Append(errs, v.validateType(ctx, m, sat))
	if errs != nil {
		return errors.NewValidation(errorMessages(errs)...)
	}
	return nil
}

// ValidateForExecution re-checks a mission against live actor state just
// before it runs. Strict headroom always applies here.
func (v *Validator) ValidateForExecution(ctx context.Context, m *v1.Mission) error {
	if err := v.Validate(ctx, m, ValidateOptions{Strict: true}); err != nil {
		return err
	}
	sat, err := v.fleet.GetState(m.SatelliteID)
	if err != nil {
		return errors.NewValidation(fmt.Sprintf("satellite %q is not started", m.SatelliteID))
	}
	switch sat.Mode {
	case v1.ModeSurvival:
		return errors.NewValidation(fmt.Sprintf("satellite %q is in survival mode", m.SatelliteID))
	case v1.ModeSafe:
		if m.Priority != v1.PriorityCritical {
			return errors.NewValidation(fmt.Sprintf("satellite %q is in safe mode, only critical missions may run", m.SatelliteID))
		}
	}
	return nil
}

func (v *Validator) validateResources(m *v1.Mission, sat *v1.Satellite, opts ValidateOptions) error {
	var errs error
	required := m.RequiredEnergy
	if opts.Strict {
		required *= 2
	}
	if sat.Energy < required {
		errs = multierr.Append(errs, fmt.Errorf("insufficient energy: have %.1f, need %.1f", sat.Energy, required))
	}
	if headroom := 100 - sat.MemoryUsed; headroom < m.RequiredMemory {
		errs = multierr.Append(errs, fmt.Errorf("insufficient memory: headroom %.1f, need %.1f", headroom, m.RequiredMemory))
	}
	return errs
}

func (v *Validator) validateDeadline(ctx context.Context, m *v1.Mission) error {
	now := v.clk.Now().UTC()
	if m.Priority == v1.PriorityCritical {
		if m.Deadline == nil {
			return fmt.Errorf("critical missions require a deadline")
		}
		if m.Deadline.Sub(now) > criticalDeadlineMax {
			return fmt.Errorf("critical mission deadline exceeds %s", criticalDeadlineMax)
		}
	}
	if m.Deadline == nil {
		return nil
	}
	lead := m.Deadline.Sub(now)
	switch {
	case lead < minDeadlineLead:
		return fmt.Errorf("deadline %s is past or less than %s away", m.Deadline.Format(time.RFC3339), minDeadlineLead)
	case lead == minDeadlineLead:
		logging.FromContext(ctx).With("mission-id", m.ID).
			Warnf("mission deadline is exactly %s away", minDeadlineLead)
	}
	return nil
}

func (v *Validator) validateType(ctx context.Context, m *v1.Mission, sat *v1.Satellite) error {
	switch m.Type {
	case v1.MissionTypeDownlink:
		if !v.hasReachableStation(ctx, m, sat) {
			return fmt.Errorf("downlink missions require a reachable online ground station")
		}
	case v1.MissionTypeImaging:
		lat, latOK := payloadFloat(m.Payload, "latitude")
		lon, lonOK := payloadFloat(m.Payload, "longitude")
		if !latOK || !lonOK || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return fmt.Errorf("imaging missions require valid latitude/longitude in the payload")
		}
	case v1.MissionTypeOrbitAdjust:
		if sat != nil && sat.Energy < orbitAdjustMinEnergy {
			return fmt.Errorf("orbit adjust requires at least %.0f%% energy, have %.1f", orbitAdjustMinEnergy, sat.Energy)
		}
	}
	return nil
}

// hasReachableStation prefers a visibility check when TLE data allows; when
// the orbital service can't answer, the static online flag decides.
func (v *Validator) hasReachableStation(ctx context.Context, m *v1.Mission, sat *v1.Satellite) bool {
	stations := v.stations.Stations()
	online := false
	for _, st := range stations {
		if st.Online {
			online = true
			break
		}
	}
	if !online {
		return false
	}
	if v.orbital == nil || sat == nil || !sat.TLE.Valid() || m.ScheduledStart == nil || m.Deadline == nil {
		return online
	}
	for _, st := range stations {
		if !st.Online {
			continue
		}
		passes, err := v.orbital.CalculateVisibility(ctx, sat.ID, *sat.TLE, st, *m.ScheduledStart, *m.Deadline)
		if err != nil {
			logging.FromContext(ctx).With("station", st.ID).
				Debugf("visibility check unavailable, using static station state, %v", err)
			return online
		}
		for _, pass := range passes {
			if pass.AOSTimestamp < m.Deadline.Unix() && pass.LOSTimestamp > m.ScheduledStart.Unix() {
				return true
			}
		}
	}
	return false
}

func payloadFloat(payload map[string]any, key string) (float64, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch val := raw.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}

func errorMessages(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		out = append(out, e.Error())
	}
	return out
}
