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

package missions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/stellarops/stellarops/pkg/alarms"
	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/storage"
)

const (
	retryBackoffBase = 10 * time.Second
	retryBackoffCap  = 10 * time.Minute
)

// WorkFunc performs the mission's actual work. The default debits the
// satellite's resources; flight software is out of scope.
type WorkFunc func(ctx context.Context, m *v1.Mission) error

// CompletionHandler observes terminal mission outcomes. The course-of-action
// executor registers one to advance its maneuver chains.
type CompletionHandler interface {
	HandleMissionComplete(ctx context.Context, m *v1.Mission)
	HandleMissionFailure(ctx context.Context, m *v1.Mission, reason string)
}

// Requeuer returns retried missions to the scheduler.
type Requeuer interface {
	Reinsert(ctx context.Context, m *v1.Mission)
}

// Executor runs each admitted mission in its own worker goroutine.
type Executor struct {
	clk    clock.Clock
	store  storage.MissionStore
	fleet  *fleet.Fleet
	alarms *alarms.Bus
	events *events.Bus
	work   WorkFunc

	mu       sync.RWMutex
	requeuer Requeuer
	handlers []CompletionHandler
	wg       sync.WaitGroup
}

type ExecutorOption func(*Executor)

// WithWork replaces the default resource-debit work function.
func WithWork(fn WorkFunc) ExecutorOption {
	return func(e *Executor) { e.work = fn }
}

func NewExecutor(clk clock.Clock, store storage.MissionStore, flt *fleet.Fleet, alarmBus *alarms.Bus, eventBus *events.Bus, opts ...ExecutorOption) *Executor {
	e := &Executor{
		clk:    clk,
		store:  store,
		fleet:  flt,
		alarms: alarmBus,
		events: eventBus,
	}
	e.work = e.defaultWork
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BindRequeuer wires the scheduler in after construction; the two reference
// each other.
func (e *Executor) BindRequeuer(r Requeuer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requeuer = r
}

// RegisterHandler adds a completion handler. Handlers run in registration
// order on the mission's worker goroutine.
func (e *Executor) RegisterHandler(h CompletionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Dispatch runs the mission on a fresh worker. The caller has already
// transitioned it to scheduled.
func (e *Executor) Dispatch(ctx context.Context, m *v1.Mission) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(ctx, m)
	}()
}

// Wait blocks until all in-flight missions finish. Used on shutdown and in
// tests.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) execute(ctx context.Context, m *v1.Mission) {
	log := logging.FromContext(ctx).With("mission-id", m.ID, "satellite", m.SatelliteID, "type", m.Type)
	// A cancel may have landed since the scheduler admitted this mission;
	// the store holds the authoritative status.
	if fresh, err := e.store.Get(ctx, m.ID); err == nil {
		m = fresh
	} else {
		log.Warnf("refreshing mission before start, %v", err)
	}
	if !m.Status.CanTransition(v1.MissionRunning) {
		log.Errorf("refusing to run mission in status %q", m.Status)
		return
	}
	start := e.clk.Now().UTC()
	m.Status = v1.MissionRunning
	m.UpdatedAt = start
	if err := e.store.Update(ctx, m); err != nil {
		log.Warnf("persisting mission start, %v", err)
	}
	e.publish(events.KindMissionStarted, m)
	log.Infof("mission started")

	err := e.work(ctx, m)
	missionDuration.WithLabelValues(m.Type).Observe(e.clk.Since(start).Seconds())
	if err != nil {
		e.fail(ctx, m, err.Error())
		return
	}
	e.complete(ctx, m)
}

func (e *Executor) complete(ctx context.Context, m *v1.Mission) {
	now := e.clk.Now().UTC()
	m.Status = v1.MissionCompleted
	m.UpdatedAt = now
	m.CompletedAt = &now
	if err := e.store.Update(ctx, m); err != nil {
		logging.FromContext(ctx).With("mission-id", m.ID).Warnf("persisting mission completion, %v", err)
	}
	completedTotal.WithLabelValues("completed").Inc()
	e.publish(events.KindMissionCompleted, m)
	logging.FromContext(ctx).With("mission-id", m.ID).Infof("mission completed")
	for _, h := range e.copyHandlers() {
		h.HandleMissionComplete(ctx, m)
	}
}

// fail either reschedules the mission with exponential backoff or marks it
// permanently failed once the retry budget is spent.
func (e *Executor) fail(ctx context.Context, m *v1.Mission, reason string) {
	log := logging.FromContext(ctx).With("mission-id", m.ID, "satellite", m.SatelliteID)
	now := e.clk.Now().UTC()
	m.Status = v1.MissionFailed
	m.FailureReason = reason
	m.UpdatedAt = now
	if err := e.store.Update(ctx, m); err != nil {
		log.Warnf("persisting mission failure, %v", err)
	}
	e.publish(events.KindMissionFailed, m)

	if m.RetryCount < m.MaxRetries {
		m.RetryCount++
		retriesTotal.Inc()
		backoff := retryBackoff(m.RetryCount)
		next := now.Add(backoff)
		m.Status = v1.MissionScheduled
		m.ScheduledStart = &next
		m.UpdatedAt = now
		if err := e.store.Update(ctx, m); err != nil {
			log.Warnf("persisting mission retry, %v", err)
		}
		severity := v1.SeverityWarning
		if m.RetryCount >= 3 {
			severity = v1.SeverityMajor
		}
		e.alarms.Raise(ctx, alarms.Spec{
			Type:     "mission_failure",
			Severity: severity,
			Message:  fmt.Sprintf("mission %s failed (attempt %d of %d): %s", m.ID, m.RetryCount, m.MaxRetries, reason),
			Source:   v1.MissionSource(m.ID),
			Details:  map[string]any{"retry_count": m.RetryCount, "backoff_seconds": backoff.Seconds()},
		})
		log.With("retry", m.RetryCount, "backoff", backoff).Infof("mission failed, rescheduled")
		if r := e.copyRequeuer(); r != nil {
			r.Reinsert(ctx, m)
		}
		return
	}

	completedTotal.WithLabelValues("failed").Inc()
	e.alarms.Raise(ctx, alarms.Spec{
		Type:     "mission_permanent_failure",
		Severity: v1.SeverityCritical,
		Message:  fmt.Sprintf("mission %s permanently failed after %d retries: %s", m.ID, m.RetryCount, reason),
		Source:   v1.MissionSource(m.ID),
	})
	log.Errorf("mission permanently failed, %s", reason)
	for _, h := range e.copyHandlers() {
		h.HandleMissionFailure(ctx, m, reason)
	}
}

// defaultWork debits the satellite's resources for the mission.
func (e *Executor) defaultWork(ctx context.Context, m *v1.Mission) error {
	if m.RequiredEnergy > 0 {
		if err := e.fleet.UpdateEnergy(m.SatelliteID, -m.RequiredEnergy); err != nil {
			return err
		}
	}
	if m.RequiredMemory > 0 {
		state, err := e.fleet.GetState(m.SatelliteID)
		if err != nil {
			return err
		}
		if err := e.fleet.UpdateMemory(m.SatelliteID, state.MemoryUsed+m.RequiredMemory); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (e *Executor) publish(kind string, m *v1.Mission) {
	cp := *m
	e.events.Publish(events.MissionTopic(m.ID), events.Event{Kind: kind, Payload: &cp, Timestamp: e.clk.Now().UTC()})
}

func (e *Executor) copyHandlers() []CompletionHandler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]CompletionHandler(nil), e.handlers...)
}

func (e *Executor) copyRequeuer() Requeuer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.requeuer
}

func retryBackoff(retryCount int) time.Duration {
	backoff := retryBackoffBase
	for i := 1; i < retryCount; i++ {
		backoff *= 2
		if backoff >= retryBackoffCap {
			return retryBackoffCap
		}
	}
	return backoff
}
