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

// Package fleet runs one actor per satellite. The actor exclusively owns its
// satellite's state; the fleet façade is the only way in.
package fleet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/avast/retry-go"
	"k8s.io/utils/clock"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/storage"
)

const DefaultCheckpointInterval = 30 * time.Second

// StartOptions seed a new satellite actor.
type StartOptions struct {
	Energy     float64
	MemoryUsed float64
	Position   v1.Vector3
	TLE        *v1.TLE
	MassKG     float64
	Mode       v1.SatelliteMode
}

type Fleet struct {
	clk      clock.WithTicker
	registry Registry
	store    storage.SatelliteStore
}

func New(clk clock.WithTicker, registry Registry, store storage.SatelliteStore) *Fleet {
	return &Fleet{clk: clk, registry: registry, store: store}
}

// Start spins up an actor for the satellite. Insertion is exclusive; starting
// a started satellite returns AlreadyExists.
func (f *Fleet) Start(ctx context.Context, id string, opts StartOptions) error {
	mode := opts.Mode
	if mode == "" {
		mode = v1.DeriveMode(v1.ModeNominal, opts.Energy)
	}
	mass := opts.MassKG
	if mass == 0 {
		mass = 500
	}
	initial := v1.Satellite{
		ID:          id,
		Mode:        mode,
		Energy:      v1.ClampResource(opts.Energy),
		MemoryUsed:  v1.ClampResource(opts.MemoryUsed),
		Position:    opts.Position,
		TLE:         opts.TLE,
		MassKG:      mass,
		LastUpdated: f.clk.Now().UTC(),
	}
	if opts.TLE.Valid() {
		now := f.clk.Now().UTC()
		initial.TLEUpdatedAt = &now
	}
	a := newActor(initial)
	if err := f.registry.Insert(id, a); err != nil {
		a.shutdown()
		return err
	}
	logging.FromContext(ctx).With("satellite", id, "mode", string(initial.Mode)).Infof("started satellite actor")
	return nil
}

// Stop destroys the satellite's actor. State is checkpointed on the way out.
func (f *Fleet) Stop(ctx context.Context, id string) error {
	a, ok := f.registry.Lookup(id)
	if !ok {
		return errors.NewNotFound("satellite", id)
	}
	f.registry.Remove(id)
	a.shutdown()
	final := a.state()
	if err := f.store.Upsert(ctx, &final); err != nil {
		logging.FromContext(ctx).With("satellite", id).Warnf("checkpointing stopped satellite, %v", err)
	}
	logging.FromContext(ctx).With("satellite", id).Infof("stopped satellite actor")
	return nil
}

func (f *Fleet) GetState(id string) (*v1.Satellite, error) {
	a, ok := f.registry.Lookup(id)
	if !ok {
		return nil, errors.NewNotFound("satellite", id)
	}
	s := a.state()
	return &s, nil
}

func (f *Fleet) List() []string {
	ids := f.registry.List()
	sort.Strings(ids)
	return ids
}

func (f *Fleet) Count() int {
	return f.registry.Count()
}

func (f *Fleet) ListStates() []v1.Satellite {
	var out []v1.Satellite
	for _, id := range f.registry.List() {
		if a, ok := f.registry.Lookup(id); ok {
			out = append(out, a.state())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateEnergy applies a delta, clamps, and derives the mode with hysteresis.
func (f *Fleet) UpdateEnergy(id string, delta float64) error {
	return f.mutate(id, func(s *v1.Satellite) {
		s.Energy = v1.ClampResource(s.Energy + delta)
		s.Mode = v1.DeriveMode(s.Mode, s.Energy)
	})
}

// UpdateMemory sets an absolute memory usage level.
func (f *Fleet) UpdateMemory(id string, absolute float64) error {
	return f.mutate(id, func(s *v1.Satellite) {
		s.MemoryUsed = v1.ClampResource(absolute)
	})
}

// SetMode overrides the derived mode until the next energy update.
func (f *Fleet) SetMode(id string, mode v1.SatelliteMode) error {
	return f.mutate(id, func(s *v1.Satellite) {
		s.Mode = mode
	})
}

func (f *Fleet) UpdatePosition(id string, position v1.Vector3) error {
	return f.mutate(id, func(s *v1.Satellite) {
		s.Position = position
	})
}

// SetTLE installs a fresh element set and stamps its update time.
func (f *Fleet) SetTLE(id string, tle v1.TLE) error {
	now := f.clk.Now().UTC()
	return f.mutate(id, func(s *v1.Satellite) {
		s.TLE = &tle
		s.TLEUpdatedAt = &now
	})
}

func (f *Fleet) mutate(id string, fn func(*v1.Satellite)) error {
	a, ok := f.registry.Lookup(id)
	if !ok {
		return errors.NewNotFound("satellite", id)
	}
	now := f.clk.Now().UTC()
	// The actor may have been stopped between the lookup and the send.
	if !a.mutate(func(s *v1.Satellite) {
		fn(s)
		s.LastUpdated = now
	}) {
		return errors.NewNotFound("satellite", id)
	}
	return nil
}

// Rehydrate starts actors for every satellite snapshot in the store.
func (f *Fleet) Rehydrate(ctx context.Context) error {
	sats, err := f.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing satellite snapshots, %w", err)
	}
	for _, sat := range sats {
		if err := f.Start(ctx, sat.ID, StartOptions{
			Energy:     sat.Energy,
			MemoryUsed: sat.MemoryUsed,
			Position:   sat.Position,
			TLE:        sat.TLE,
			MassKG:     sat.MassKG,
			Mode:       sat.Mode,
		}); err != nil && !errors.IsAlreadyExists(err) {
			return err
		}
	}
	if len(sats) > 0 {
		logging.FromContext(ctx).With("count", len(sats)).Infof("rehydrated satellite actors")
	}
	return nil
}

// Checkpoint persists every actor's current state. Transient store failures
// are retried briefly and then logged; memory stays authoritative.
func (f *Fleet) Checkpoint(ctx context.Context) {
	for _, state := range f.ListStates() {
		state := state
		err := retry.Do(func() error { return f.store.Upsert(ctx, &state) },
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(50*time.Millisecond),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			logging.FromContext(ctx).With("satellite", state.ID).Warnf("checkpointing satellite, %v", err)
		}
	}
}

// RunCheckpoints loops until the context is done.
func (f *Fleet) RunCheckpoints(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	ticker := f.clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			f.Checkpoint(ctx)
		}
	}
}
