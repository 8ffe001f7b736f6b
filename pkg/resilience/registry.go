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

package resilience

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Downstream breaker names. Orbital carries the strictest settings since the
// whole detection pipeline rides on it.
const (
	BreakerOrbital    = "orbital"
	BreakerCelestrak  = "celestrak"
	BreakerSpacetrack = "spacetrack"
	BreakerIntel      = "intel"
)

// DefaultSettings are the per-downstream breaker parameters.
var DefaultSettings = map[string]Settings{
	BreakerOrbital:    {FailureThreshold: 3, FailureWindow: 30 * time.Second, ResetTimeout: 15 * time.Second},
	BreakerCelestrak:  {FailureThreshold: 5, FailureWindow: 60 * time.Second, ResetTimeout: 30 * time.Second},
	BreakerSpacetrack: {FailureThreshold: 5, FailureWindow: 60 * time.Second, ResetTimeout: 60 * time.Second},
	BreakerIntel:      {FailureThreshold: 10, FailureWindow: 120 * time.Second, ResetTimeout: 30 * time.Second},
}

// OperationalMode describes how much of the system's downstream surface is
// currently usable.
type OperationalMode string

const (
	ModeFull      OperationalMode = "full"
	ModeDegraded  OperationalMode = "degraded"
	ModeCritical  OperationalMode = "critical"
	ModeEmergency OperationalMode = "emergency"
)

// Registry holds the named breakers for the process.
type Registry struct {
	clk clock.Clock

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry builds a registry pre-populated with the default downstream
// breakers, with any overrides applied.
func NewRegistry(clk clock.Clock, overrides map[string]Settings) *Registry {
	r := &Registry{
		clk:      clk,
		breakers: map[string]*Breaker{},
	}
	for name, settings := range DefaultSettings {
		if override, ok := overrides[name]; ok {
			settings = override
		}
		r.breakers[name] = NewBreaker(name, settings, clk)
	}
	return r
}

// Breaker returns the named breaker, creating it with celestrak-grade default
// settings when it doesn't exist yet.
func (r *Registry) Breaker(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, DefaultSettings[BreakerCelestrak], r.clk)
	r.breakers[name] = b
	return b
}

// States returns a snapshot of every breaker's state.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}

// OperationalMode derives the degradation mode from open-breaker count. Any
// open orbital breaker forces at least critical since every screening cycle
// depends on it.
func (r *Registry) OperationalMode() OperationalMode {
	states := r.States()
	openCount := 0
	for _, s := range states {
		if s == Open {
			openCount++
		}
	}
	orbitalOpen := states[BreakerOrbital] == Open
	switch {
	case openCount >= 3:
		return ModeEmergency
	case orbitalOpen || openCount == 2:
		return ModeCritical
	case openCount == 1:
		return ModeDegraded
	default:
		return ModeFull
	}
}
