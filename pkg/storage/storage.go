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

// Package storage declares the persistence contracts for the control plane.
// The SQL layer is an external collaborator; components depend only on these
// interfaces and rehydrate their in-memory authoritative state from them on
// boot.
package storage

import (
	"context"
	"time"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
)

type AlarmStore interface {
	Insert(ctx context.Context, alarm *v1.Alarm) error
	Update(ctx context.Context, alarm *v1.Alarm) error
	ListUnresolved(ctx context.Context) ([]*v1.Alarm, error)
	Delete(ctx context.Context, id string) error
}

type MissionStore interface {
	Insert(ctx context.Context, mission *v1.Mission) error
	Update(ctx context.Context, mission *v1.Mission) error
	Get(ctx context.Context, id string) (*v1.Mission, error)
	ListByStatus(ctx context.Context, statuses ...v1.MissionStatus) ([]*v1.Mission, error)
	ListByCOA(ctx context.Context, coaID string) ([]*v1.Mission, error)
	Delete(ctx context.Context, id string) error
}

type ConjunctionStore interface {
	Insert(ctx context.Context, conjunction *v1.Conjunction) error
	Update(ctx context.Context, conjunction *v1.Conjunction) error
	Get(ctx context.Context, id string) (*v1.Conjunction, error)
	// GetLiveByPair returns the non-expired, non-resolved conjunction for an
	// asset/object pair, if one exists. The detector upserts through this.
	GetLiveByPair(ctx context.Context, assetID, objectID string) (*v1.Conjunction, error)
	ListLive(ctx context.Context) ([]*v1.Conjunction, error)
	// ListExpirable returns live conjunctions whose TCA is before the cutoff.
	ListExpirable(ctx context.Context, cutoff time.Time) ([]*v1.Conjunction, error)
}

type COAStore interface {
	Insert(ctx context.Context, coa *v1.COA) error
	Update(ctx context.Context, coa *v1.COA) error
	Get(ctx context.Context, id string) (*v1.COA, error)
	ListByConjunction(ctx context.Context, conjunctionID string) ([]*v1.COA, error)
	Delete(ctx context.Context, id string) error
}

type SatelliteStore interface {
	Upsert(ctx context.Context, satellite *v1.Satellite) error
	Get(ctx context.Context, id string) (*v1.Satellite, error)
	List(ctx context.Context) ([]*v1.Satellite, error)
	Delete(ctx context.Context, id string) error
}

// Store aggregates the per-entity stores a deployment wires together.
type Store interface {
	Alarms() AlarmStore
	Missions() MissionStore
	Conjunctions() ConjunctionStore
	COAs() COAStore
	Satellites() SatelliteStore
}
