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

package test

import (
	"fmt"
	"strings"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/samber/lo"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
)

// RandomName returns a lowercased unique name with the given prefix.
func RandomName(prefix string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%s", prefix, randomdata.SillyName(), randomdata.Alphanumeric(8)))
}

// TLE returns a syntactically plausible element set. The scripted orbital
// service never parses it.
func TLE() *v1.TLE {
	return &v1.TLE{
		Line1: "1 25544U 98067A   25152.50000000  .00016717  00000-0  10270-3 0  9000",
		Line2: "2 25544  51.6400 208.9163 0006317  69.9862 290.2000 15.49140000 00000",
	}
}

// Satellite builds a satellite spec with healthy defaults, applying any
// overrides on top.
func Satellite(overrides ...v1.Satellite) *v1.Satellite {
	sat := v1.Satellite{
		ID:     RandomName("sat"),
		Mode:   v1.ModeNominal,
		Energy: 90,
		TLE:    TLE(),
		MassKG: 500,
	}
	for _, o := range overrides {
		sat = mergeSatellite(sat, o)
	}
	return &sat
}

func mergeSatellite(base, override v1.Satellite) v1.Satellite {
	out := base
	out.ID = lo.Ternary(override.ID != "", override.ID, base.ID)
	out.Mode = lo.Ternary(override.Mode != "", override.Mode, base.Mode)
	out.Energy = lo.Ternary(override.Energy != 0, override.Energy, base.Energy)
	out.MemoryUsed = lo.Ternary(override.MemoryUsed != 0, override.MemoryUsed, base.MemoryUsed)
	if override.Position.Norm() != 0 {
		out.Position = override.Position
	}
	if override.TLE != nil {
		out.TLE = override.TLE
	}
	out.MassKG = lo.Ternary(override.MassKG != 0, override.MassKG, base.MassKG)
	return out
}

// Mission builds a mission spec with sensible defaults, applying any
// overrides on top.
func Mission(overrides ...v1.Mission) *v1.Mission {
	m := v1.Mission{
		SatelliteID:    RandomName("sat"),
		Type:           v1.MissionTypeImaging,
		Priority:       v1.PriorityNormal,
		RequiredEnergy: 10,
		RequiredMemory: 5,
		MaxRetries:     3,
		Payload:        map[string]any{"latitude": 47.6, "longitude": -122.3},
	}
	for _, o := range overrides {
		m = mergeMission(m, o)
	}
	return &m
}

func mergeMission(base, override v1.Mission) v1.Mission {
	out := base
	out.ID = lo.Ternary(override.ID != "", override.ID, base.ID)
	out.SatelliteID = lo.Ternary(override.SatelliteID != "", override.SatelliteID, base.SatelliteID)
	out.COAID = lo.Ternary(override.COAID != "", override.COAID, base.COAID)
	out.Type = lo.Ternary(override.Type != "", override.Type, base.Type)
	out.Priority = lo.Ternary(override.Priority != "", override.Priority, base.Priority)
	if override.ScheduledStart != nil {
		out.ScheduledStart = override.ScheduledStart
	}
	if override.Deadline != nil {
		out.Deadline = override.Deadline
	}
	out.RequiredEnergy = lo.Ternary(override.RequiredEnergy != 0, override.RequiredEnergy, base.RequiredEnergy)
	out.RequiredMemory = lo.Ternary(override.RequiredMemory != 0, override.RequiredMemory, base.RequiredMemory)
	out.RequiredBandwidth = lo.Ternary(override.RequiredBandwidth != 0, override.RequiredBandwidth, base.RequiredBandwidth)
	if override.Payload != nil {
		out.Payload = override.Payload
	}
	out.MaxRetries = lo.Ternary(override.MaxRetries != 0, override.MaxRetries, base.MaxRetries)
	return out
}

// Conjunction builds a conjunction record with defaults, applying any
// overrides on top.
func Conjunction(now time.Time, overrides ...v1.Conjunction) *v1.Conjunction {
	cj := v1.Conjunction{
		ID:                 RandomName("cj"),
		AssetID:            RandomName("sat"),
		SecondaryObjectID:  RandomName("obj"),
		TCA:                now.Add(6 * time.Hour),
		MissDistanceKM:     3.2,
		Severity:           v1.SeverityForMissDistance(3.2),
		Status:             v1.ConjunctionPredicted,
		AssetPositionAtTCA: v1.Vector3{X: 6871, Y: 0, Z: 0},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for _, o := range overrides {
		cj = mergeConjunction(cj, o)
	}
	return &cj
}

func mergeConjunction(base, override v1.Conjunction) v1.Conjunction {
	out := base
	out.ID = lo.Ternary(override.ID != "", override.ID, base.ID)
	out.AssetID = lo.Ternary(override.AssetID != "", override.AssetID, base.AssetID)
	out.SecondaryObjectID = lo.Ternary(override.SecondaryObjectID != "", override.SecondaryObjectID, base.SecondaryObjectID)
	if !override.TCA.IsZero() {
		out.TCA = override.TCA
	}
	if override.MissDistanceKM != 0 {
		out.MissDistanceKM = override.MissDistanceKM
		out.Severity = v1.SeverityForMissDistance(override.MissDistanceKM)
	}
	out.Status = lo.Ternary(override.Status != "", override.Status, base.Status)
	if override.AssetPositionAtTCA.Norm() != 0 {
		out.AssetPositionAtTCA = override.AssetPositionAtTCA
	}
	return out
}

// GroundStation builds an online station.
func GroundStation(overrides ...v1.GroundStation) v1.GroundStation {
	st := v1.GroundStation{
		ID:              RandomName("gs"),
		Name:            randomdata.City(),
		LatitudeDeg:     47.6,
		LongitudeDeg:    -122.3,
		MinElevationDeg: 10,
		Online:          true,
	}
	for _, o := range overrides {
		if o.ID != "" {
			st.ID = o.ID
		}
		if o.Name != "" {
			st.Name = o.Name
		}
		st.Online = o.Online
	}
	return st
}
