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

// Package inmemory implements the storage contracts with mutex-guarded maps.
// It is the authoritative store in the single-trust-domain deployment and the
// failure-injectable double in tests.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/storage"
)

type Store struct {
	alarms       *AlarmStore
	missions     *MissionStore
	conjunctions *ConjunctionStore
	coas         *COAStore
	satellites   *SatelliteStore
}

func NewStore() *Store {
	return &Store{
		alarms:       NewAlarmStore(),
		missions:     NewMissionStore(),
		conjunctions: NewConjunctionStore(),
		coas:         NewCOAStore(),
		satellites:   NewSatelliteStore(),
	}
}

func (s *Store) Alarms() storage.AlarmStore             { return s.alarms }
func (s *Store) Missions() storage.MissionStore         { return s.missions }
func (s *Store) Conjunctions() storage.ConjunctionStore { return s.conjunctions }
func (s *Store) COAs() storage.COAStore                 { return s.coas }
func (s *Store) Satellites() storage.SatelliteStore     { return s.satellites }

// failer lets tests make any store operation fail to exercise degraded paths.
type failer struct {
	mu  sync.Mutex
	err error
}

// SetError makes subsequent operations return err until cleared with nil.
func (f *failer) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *failer) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

type AlarmStore struct {
	failer
	mu     sync.RWMutex
	alarms map[string]*v1.Alarm
}

func NewAlarmStore() *AlarmStore {
	return &AlarmStore{alarms: map[string]*v1.Alarm{}}
}

func (s *AlarmStore) Insert(_ context.Context, alarm *v1.Alarm) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alarm
	s.alarms[alarm.ID] = &cp
	return nil
}

func (s *AlarmStore) Update(_ context.Context, alarm *v1.Alarm) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alarms[alarm.ID]; !ok {
		return errors.NewNotFound("alarm", alarm.ID)
	}
	cp := *alarm
	s.alarms[alarm.ID] = &cp
	return nil
}

func (s *AlarmStore) ListUnresolved(_ context.Context) ([]*v1.Alarm, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.Alarm
	for _, a := range s.alarms {
		if a.Status != v1.AlarmResolved {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *AlarmStore) Delete(_ context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarms, id)
	return nil
}

type MissionStore struct {
	failer
	mu       sync.RWMutex
	missions map[string]*v1.Mission
}

func NewMissionStore() *MissionStore {
	return &MissionStore{missions: map[string]*v1.Mission{}}
}

func (s *MissionStore) Insert(_ context.Context, mission *v1.Mission) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *mission
	s.missions[mission.ID] = &cp
	return nil
}

func (s *MissionStore) Update(_ context.Context, mission *v1.Mission) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missions[mission.ID]; !ok {
		return errors.NewNotFound("mission", mission.ID)
	}
	cp := *mission
	s.missions[mission.ID] = &cp
	return nil
}

func (s *MissionStore) Get(_ context.Context, id string) (*v1.Mission, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, errors.NewNotFound("mission", id)
	}
	cp := *m
	return &cp, nil
}

func (s *MissionStore) ListByStatus(_ context.Context, statuses ...v1.MissionStatus) ([]*v1.Mission, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.Mission
	for _, m := range s.missions {
		if len(statuses) == 0 || lo.Contains(statuses, m.Status) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MissionStore) ListByCOA(_ context.Context, coaID string) ([]*v1.Mission, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.Mission
	for _, m := range s.missions {
		if m.COAID == coaID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MissionStore) Delete(_ context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.missions, id)
	return nil
}

type ConjunctionStore struct {
	failer
	mu           sync.RWMutex
	conjunctions map[string]*v1.Conjunction
}

func NewConjunctionStore() *ConjunctionStore {
	return &ConjunctionStore{conjunctions: map[string]*v1.Conjunction{}}
}

func (s *ConjunctionStore) Insert(_ context.Context, conjunction *v1.Conjunction) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conjunction
	s.conjunctions[conjunction.ID] = &cp
	return nil
}

func (s *ConjunctionStore) Update(_ context.Context, conjunction *v1.Conjunction) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conjunctions[conjunction.ID]; !ok {
		return errors.NewNotFound("conjunction", conjunction.ID)
	}
	cp := *conjunction
	s.conjunctions[conjunction.ID] = &cp
	return nil
}

func (s *ConjunctionStore) Get(_ context.Context, id string) (*v1.Conjunction, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conjunctions[id]
	if !ok {
		return nil, errors.NewNotFound("conjunction", id)
	}
	cp := *c
	return &cp, nil
}

func (s *ConjunctionStore) GetLiveByPair(_ context.Context, assetID, objectID string) (*v1.Conjunction, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conjunctions {
		if c.AssetID == assetID && c.SecondaryObjectID == objectID && c.Live() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.NewNotFound("conjunction", assetID+"/"+objectID)
}

func (s *ConjunctionStore) ListLive(_ context.Context) ([]*v1.Conjunction, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.Conjunction
	for _, c := range s.conjunctions {
		if c.Live() {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *ConjunctionStore) ListExpirable(_ context.Context, cutoff time.Time) ([]*v1.Conjunction, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.Conjunction
	for _, c := range s.conjunctions {
		if c.Live() && c.TCA.Before(cutoff) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type COAStore struct {
	failer
	mu   sync.RWMutex
	coas map[string]*v1.COA
}

func NewCOAStore() *COAStore {
	return &COAStore{coas: map[string]*v1.COA{}}
}

func (s *COAStore) Insert(_ context.Context, coa *v1.COA) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *coa
	s.coas[coa.ID] = &cp
	return nil
}

func (s *COAStore) Update(_ context.Context, coa *v1.COA) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coas[coa.ID]; !ok {
		return errors.NewNotFound("coa", coa.ID)
	}
	cp := *coa
	s.coas[coa.ID] = &cp
	return nil
}

func (s *COAStore) Get(_ context.Context, id string) (*v1.COA, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coas[id]
	if !ok {
		return nil, errors.NewNotFound("coa", id)
	}
	cp := *c
	return &cp, nil
}

func (s *COAStore) ListByConjunction(_ context.Context, conjunctionID string) ([]*v1.COA, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.COA
	for _, c := range s.coas {
		if c.ConjunctionID == conjunctionID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *COAStore) Delete(_ context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.coas, id)
	return nil
}

type SatelliteStore struct {
	failer
	mu         sync.RWMutex
	satellites map[string]*v1.Satellite
}

func NewSatelliteStore() *SatelliteStore {
	return &SatelliteStore{satellites: map[string]*v1.Satellite{}}
}

func (s *SatelliteStore) Upsert(_ context.Context, satellite *v1.Satellite) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *satellite
	s.satellites[satellite.ID] = &cp
	return nil
}

func (s *SatelliteStore) Get(_ context.Context, id string) (*v1.Satellite, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sat, ok := s.satellites[id]
	if !ok {
		return nil, errors.NewNotFound("satellite", id)
	}
	cp := *sat
	return &cp, nil
}

func (s *SatelliteStore) List(_ context.Context) ([]*v1.Satellite, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1.Satellite
	for _, sat := range s.satellites {
		cp := *sat
		out = append(out, &cp)
	}
	return out, nil
}

func (s *SatelliteStore) Delete(_ context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.satellites, id)
	return nil
}
