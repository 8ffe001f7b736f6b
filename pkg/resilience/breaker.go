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

// Package resilience guards outbound calls to flaky downstreams with named
// circuit breakers, aggregates breaker state into an operational mode, and
// provides a cache-backed fallback wrapper.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/stellarops/stellarops/pkg/errors"
)

type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

type Settings struct {
	FailureThreshold int
	FailureWindow    time.Duration
	ResetTimeout     time.Duration
}

// Breaker is a single named circuit breaker with a sliding failure window.
// Closed → open when failures within the window reach the threshold; open →
// half-open after the reset timeout; half-open admits a single probe and
// closes on its success or re-opens on its failure.
type Breaker struct {
	name     string
	settings Settings
	clk      clock.Clock

	mu       sync.Mutex
	state    State
	failures []time.Time
	openedAt time.Time
	probing  bool
}

func NewBreaker(name string, settings Settings, clk clock.Clock) *Breaker {
	b := &Breaker{
		name:     name,
		settings: settings,
		clk:      clk,
		state:    Closed,
	}
	stateGauge.WithLabelValues(name).Set(stateValue(Closed))
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the open → half-open timer.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// admit decides whether a call may proceed. In half-open only one probe is in
// flight at a time.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	switch b.state {
	case Open:
		return errors.NewCircuitOpen(b.name)
	case HalfOpen:
		if b.probing {
			return errors.NewCircuitOpen(b.name)
		}
		b.probing = true
	}
	return nil
}

// refresh moves open breakers to half-open once the reset timeout has passed.
// Callers must hold b.mu.
func (b *Breaker) refresh() {
	if b.state == Open && !b.clk.Now().Before(b.openedAt.Add(b.settings.ResetTimeout)) {
		b.setState(HalfOpen)
		b.probing = false
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.setState(Closed)
		b.failures = nil
	}
	b.probing = false
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()
	switch b.state {
	case HalfOpen:
		b.trip(now)
	case Closed:
		cutoff := now.Add(-b.settings.FailureWindow)
		b.failures = append(b.failures, now)
		kept := b.failures[:0]
		for _, t := range b.failures {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		b.failures = kept
		if len(b.failures) >= b.settings.FailureThreshold {
			b.trip(now)
		}
	}
	b.probing = false
}

func (b *Breaker) trip(now time.Time) {
	b.setState(Open)
	b.openedAt = now
	b.failures = nil
}

func (b *Breaker) setState(s State) {
	b.state = s
	stateGauge.WithLabelValues(b.name).Set(stateValue(s))
}

func stateValue(s State) float64 {
	switch s {
	case Open:
		return 2
	case HalfOpen:
		return 1
	default:
		return 0
	}
}

// Do runs fn through the breaker. Panics inside fn are recovered and counted
// as failures.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		callsTotal.WithLabelValues(b.name, resultRejected).Inc()
		return zero, err
	}
	out, err := invoke(ctx, b.name, fn)
	if err != nil {
		b.recordFailure()
		callsTotal.WithLabelValues(b.name, resultFailure).Inc()
		return zero, err
	}
	b.recordSuccess()
	callsTotal.WithLabelValues(b.name, resultSuccess).Inc()
	return out, nil
}

func invoke[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in call through breaker %q: %v", name, r)
		}
	}()
	return fn(ctx)
}
