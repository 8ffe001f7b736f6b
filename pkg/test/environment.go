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

// Package test bundles the in-memory control plane used by the suites: fake
// clock, deterministic ids, in-memory stores, and the scripted orbital
// service.
package test

import (
	"context"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stellarops/stellarops/pkg/alarms"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/orbital"
	"github.com/stellarops/stellarops/pkg/resilience"
	"github.com/stellarops/stellarops/pkg/storage/inmemory"
	"github.com/stellarops/stellarops/pkg/utils/ids"
)

// Environment is the assembled in-memory control plane for a suite.
type Environment struct {
	Clock    *clocktesting.FakeClock
	Minter   *ids.Sequential
	Store    *inmemory.Store
	EventBus *events.Bus
	AlarmBus *alarms.Bus
	Fleet    *fleet.Fleet
	Breakers *resilience.Registry
	Orbital  *orbital.Fake
}

// NewEnvironment builds a fresh environment anchored at a fixed epoch so
// time-dependent assertions are reproducible.
func NewEnvironment(ctx context.Context) *Environment {
	clk := clocktesting.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	minter := ids.NewSequential()
	store := inmemory.NewStore()
	eventBus := events.NewBus()
	alarmBus := alarms.NewBus(ctx, clk, minter, store.Alarms(), eventBus)
	breakers := resilience.NewRegistry(clk, nil)
	return &Environment{
		Clock:    clk,
		Minter:   minter,
		Store:    store,
		EventBus: eventBus,
		AlarmBus: alarmBus,
		Fleet:    fleet.New(clk, fleet.NewLocalRegistry(), store.Satellites()),
		Breakers: breakers,
		Orbital:  orbital.NewFake(),
	}
}

// Stop tears down every started satellite actor.
func (env *Environment) Stop(ctx context.Context) {
	for _, id := range env.Fleet.List() {
		_ = env.Fleet.Stop(ctx, id)
	}
}
