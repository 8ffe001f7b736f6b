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

package orbital

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/resilience"
)

// OrbitFunc returns the position of an object at a UNIX-second timestamp.
type OrbitFunc func(timestamp int64) v1.Vector3

// CircularOrbit builds a deterministic equatorial circular orbit.
func CircularOrbit(radiusKM, periodSeconds, phaseRad float64) OrbitFunc {
	return func(ts int64) v1.Vector3 {
		theta := phaseRad + 2*math.Pi*float64(ts)/periodSeconds
		return v1.Vector3{
			X: radiusKM * math.Cos(theta),
			Y: radiusKM * math.Sin(theta),
			Z: 0,
		}
	}
}

// LinearApproach builds an orbit that passes within missKM of the target
// orbit at exactly closestAt, receding linearly on both sides. Useful for
// staging conjunctions in tests.
func LinearApproach(target OrbitFunc, missKM float64, closestAt int64, recedeKMPerS float64) OrbitFunc {
	return func(ts int64) v1.Vector3 {
		offset := missKM + math.Abs(float64(ts-closestAt))*recedeKMPerS
		p := target(ts)
		return p.Add(v1.Vector3{Z: offset})
	}
}

// Fake is the deterministic in-process orbital service used in tests and
// local runs. Orbits are keyed by satellite id; unknown ids get a circular
// orbit derived from the id hash. Calls still flow through the orbital
// breaker when one is attached so resilience behavior stays realistic.
type Fake struct {
	mu      sync.RWMutex
	orbits  map[string]OrbitFunc
	err     error
	breaker *resilience.Breaker

	PropagateCalls  int
	TrajectoryCalls int
	VisibilityCalls int
	HealthCalls     int
}

func NewFake() *Fake {
	return &Fake{orbits: map[string]OrbitFunc{}}
}

// WithBreaker routes fake calls through the given breaker.
func (f *Fake) WithBreaker(b *resilience.Breaker) *Fake {
	f.breaker = b
	return f
}

// SetOrbit scripts the orbit for a satellite id.
func (f *Fake) SetOrbit(satelliteID string, fn OrbitFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orbits[satelliteID] = fn
}

// FailWith makes every subsequent call return err until cleared with nil.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orbits = map[string]OrbitFunc{}
	f.err = nil
	f.PropagateCalls, f.TrajectoryCalls, f.VisibilityCalls, f.HealthCalls = 0, 0, 0, 0
}

func (f *Fake) orbit(satelliteID string) OrbitFunc {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if fn, ok := f.orbits[satelliteID]; ok {
		return fn
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(satelliteID))
	seed := float64(h.Sum32())
	radius := 6871 + math.Mod(seed, 500)
	phase := math.Mod(seed, 2*math.Pi)
	return CircularOrbit(radius, 5400, phase)
}

func (f *Fake) call(ctx context.Context, fn func() (any, error)) (any, error) {
	wrapped := func(context.Context) (any, error) {
		f.mu.RLock()
		err := f.err
		f.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		return fn()
	}
	if f.breaker != nil {
		return resilience.Do(ctx, f.breaker, wrapped)
	}
	return wrapped(ctx)
}

func (f *Fake) PropagatePosition(ctx context.Context, satelliteID string, _ v1.TLE, at time.Time) (*PositionResult, error) {
	f.mu.Lock()
	f.PropagateCalls++
	f.mu.Unlock()
	out, err := f.call(ctx, func() (any, error) {
		fn := f.orbit(satelliteID)
		ts := at.Unix()
		pos := fn(ts)
		// Finite-difference velocity over one second.
		vel := fn(ts + 1).Sub(pos)
		return &PositionResult{Position: pos, Velocity: vel}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*PositionResult), nil
}

func (f *Fake) PropagateTrajectory(ctx context.Context, satelliteID string, _ v1.TLE, start, end time.Time, stepSeconds int64) ([]v1.TrajectoryPoint, error) {
	f.mu.Lock()
	f.TrajectoryCalls++
	f.mu.Unlock()
	out, err := f.call(ctx, func() (any, error) {
		fn := f.orbit(satelliteID)
		var points []v1.TrajectoryPoint
		for ts := start.Unix(); ts <= end.Unix(); ts += stepSeconds {
			points = append(points, v1.TrajectoryPoint{Timestamp: ts, Position: fn(ts)})
		}
		return points, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]v1.TrajectoryPoint), nil
}

func (f *Fake) CalculateVisibility(ctx context.Context, satelliteID string, _ v1.TLE, station v1.GroundStation, start, _ time.Time) ([]v1.Pass, error) {
	f.mu.Lock()
	f.VisibilityCalls++
	f.mu.Unlock()
	out, err := f.call(ctx, func() (any, error) {
		// One synthetic pass an hour in, mirroring the real service's shape.
		aos := start.Unix() + 3600
		return []v1.Pass{{
			AOSTimestamp:          aos,
			LOSTimestamp:          aos + 600,
			MaxElevationTimestamp: aos + 300,
			MaxElevationDeg:       45,
			AOSAzimuthDeg:         270,
			LOSAzimuthDeg:         90,
			DurationSeconds:       600,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]v1.Pass), nil
}

func (f *Fake) Health(ctx context.Context) (*HealthStatus, error) {
	f.mu.Lock()
	f.HealthCalls++
	f.mu.Unlock()
	out, err := f.call(ctx, func() (any, error) {
		return &HealthStatus{Healthy: true, Version: "fake"}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*HealthStatus), nil
}
