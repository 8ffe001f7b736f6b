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

// Package alarms owns the authoritative in-memory alarm index with
// write-through persistence. Persist failures degrade to in-memory-only
// operation and never propagate to the raiser.
package alarms

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/samber/lo"
	"k8s.io/utils/clock"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/storage"
	"github.com/stellarops/stellarops/pkg/utils/ids"
)

const DefaultRetention = 24 * time.Hour

// Spec is the caller-facing shape of a new alarm.
type Spec struct {
	Type     string
	Severity v1.AlarmSeverity
	Message  string
	Source   string
	Details  map[string]any
}

// Filter narrows List results. Nil fields match everything.
type Filter struct {
	Status       *v1.AlarmStatus
	Severity     *v1.AlarmSeverity
	SourcePrefix string
	Limit        int
}

// Summary is the grouped count view served to dashboards.
type Summary struct {
	ByStatus       map[v1.AlarmStatus]int   `json:"by_status"`
	BySeverity     map[v1.AlarmSeverity]int `json:"by_severity"`
	ActiveCritical int                      `json:"active_critical"`
	ActiveMajor    int                      `json:"active_major"`
}

type Bus struct {
	clk       clock.Clock
	minter    ids.Minter
	store     storage.AlarmStore
	events    *events.Bus
	retention time.Duration

	mu    sync.RWMutex
	index map[string]*v1.Alarm
}

type Option func(*Bus)

func WithRetention(d time.Duration) Option {
	return func(b *Bus) { b.retention = d }
}

// NewBus builds the alarm bus and rehydrates unresolved alarms from the store.
func NewBus(ctx context.Context, clk clock.Clock, minter ids.Minter, store storage.AlarmStore, eventBus *events.Bus, opts ...Option) *Bus {
	b := &Bus{
		clk:       clk,
		minter:    minter,
		store:     store,
		events:    eventBus,
		retention: DefaultRetention,
		index:     map[string]*v1.Alarm{},
	}
	for _, opt := range opts {
		opt(b)
	}
	unresolved, err := store.ListUnresolved(ctx)
	if err != nil {
		logging.FromContext(ctx).Warnf("rehydrating alarms, continuing with an empty index, %v", err)
		return b
	}
	for _, alarm := range unresolved {
		b.index[alarm.ID] = alarm
	}
	if len(unresolved) > 0 {
		logging.FromContext(ctx).With("count", len(unresolved)).Infof("rehydrated unresolved alarms")
	}
	return b
}

// Raise persists and indexes a new alarm, then broadcasts it. Persistence
// failures are logged and the alarm continues in memory only.
func (b *Bus) Raise(ctx context.Context, spec Spec) *v1.Alarm {
	now := b.clk.Now().UTC()
	alarm := &v1.Alarm{
		ID:        b.minter.New(ids.AlarmPrefix),
		Type:      spec.Type,
		Severity:  spec.Severity,
		Message:   spec.Message,
		Source:    spec.Source,
		Details:   spec.Details,
		Status:    v1.AlarmActive,
		CreatedAt: now,
	}
	if err := b.persist(ctx, func() error { return b.store.Insert(ctx, alarm) }); err != nil {
		logging.FromContext(ctx).With("alarm-id", alarm.ID, "type", alarm.Type).
			Warnf("persisting alarm, continuing in-memory only, %v", err)
	}
	b.mu.Lock()
	b.index[alarm.ID] = alarm
	b.mu.Unlock()

	raisedTotal.WithLabelValues(string(spec.Severity), spec.Type).Inc()
	b.broadcast(events.KindAlarmRaised, alarm)
	return copyAlarm(alarm)
}

// Acknowledge advances an active alarm. Re-acknowledging is a no-op on fields
// already set; timestamps never regress.
func (b *Bus) Acknowledge(ctx context.Context, id, user string) error {
	b.mu.Lock()
	alarm, ok := b.index[id]
	if !ok {
		b.mu.Unlock()
		return errors.NewNotFound("alarm", id)
	}
	if !alarm.Status.Advances(v1.AlarmAcknowledged) {
		b.mu.Unlock()
		return nil
	}
	now := b.clk.Now().UTC()
	alarm.Status = v1.AlarmAcknowledged
	alarm.AcknowledgedAt = &now
	alarm.AcknowledgedBy = user
	cp := copyAlarm(alarm)
	b.mu.Unlock()

	if err := b.persist(ctx, func() error { return b.store.Update(ctx, cp) }); err != nil {
		logging.FromContext(ctx).With("alarm-id", id).Warnf("persisting acknowledgement, %v", err)
	}
	b.broadcast(events.KindAlarmAcknowledged, cp)
	return nil
}

// Resolve advances an alarm to resolved. Resolved alarms remain queryable
// until purged.
func (b *Bus) Resolve(ctx context.Context, id string) error {
	b.mu.Lock()
	alarm, ok := b.index[id]
	if !ok {
		b.mu.Unlock()
		return errors.NewNotFound("alarm", id)
	}
	if !alarm.Status.Advances(v1.AlarmResolved) {
		b.mu.Unlock()
		return nil
	}
	now := b.clk.Now().UTC()
	alarm.Status = v1.AlarmResolved
	alarm.ResolvedAt = &now
	cp := copyAlarm(alarm)
	b.mu.Unlock()

	if err := b.persist(ctx, func() error { return b.store.Update(ctx, cp) }); err != nil {
		logging.FromContext(ctx).With("alarm-id", id).Warnf("persisting resolution, %v", err)
	}
	b.broadcast(events.KindAlarmResolved, cp)
	return nil
}

// Get returns a snapshot of a single alarm.
func (b *Bus) Get(id string) (*v1.Alarm, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	alarm, ok := b.index[id]
	if !ok {
		return nil, errors.NewNotFound("alarm", id)
	}
	return copyAlarm(alarm), nil
}

// List returns matching alarms most-recent-first, created_at descending with
// id as the stable tiebreak.
func (b *Bus) List(filter Filter) []*v1.Alarm {
	b.mu.RLock()
	matches := lo.FilterMap(lo.Values(b.index), func(a *v1.Alarm, _ int) (*v1.Alarm, bool) {
		if filter.Status != nil && a.Status != *filter.Status {
			return nil, false
		}
		if filter.Severity != nil && a.Severity != *filter.Severity {
			return nil, false
		}
		if filter.SourcePrefix != "" && !strings.HasPrefix(a.Source, filter.SourcePrefix) {
			return nil, false
		}
		return copyAlarm(a), true
	})
	b.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches
}

// Summary returns counts grouped by status and severity.
func (b *Bus) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Summary{
		ByStatus:   map[v1.AlarmStatus]int{},
		BySeverity: map[v1.AlarmSeverity]int{},
	}
	for _, a := range b.index {
		s.ByStatus[a.Status]++
		s.BySeverity[a.Severity]++
		if a.Status == v1.AlarmActive {
			switch a.Severity {
			case v1.SeverityCritical:
				s.ActiveCritical++
			case v1.SeverityMajor:
				s.ActiveMajor++
			}
		}
	}
	return s
}

// PurgeResolved removes resolved alarms older than the given age from memory
// and the store, returning how many were deleted.
func (b *Bus) PurgeResolved(ctx context.Context, olderThan time.Duration) int {
	cutoff := b.clk.Now().UTC().Add(-olderThan)
	b.mu.Lock()
	var purged []string
	for id, a := range b.index {
		if a.Status == v1.AlarmResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(b.index, id)
			purged = append(purged, id)
		}
	}
	b.mu.Unlock()

	for _, id := range purged {
		if err := b.store.Delete(ctx, id); err != nil {
			logging.FromContext(ctx).With("alarm-id", id).Warnf("purging alarm from store, %v", err)
		}
	}
	return len(purged)
}

// Retention is the configured resolved-alarm retention used by the janitor.
func (b *Bus) Retention() time.Duration {
	return b.retention
}

func (b *Bus) persist(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

func (b *Bus) broadcast(kind string, alarm *v1.Alarm) {
	evt := events.Event{Kind: kind, Payload: copyAlarm(alarm), Timestamp: b.clk.Now().UTC()}
	b.events.Publish(events.TopicAlarmsAll, evt)
	b.events.Publish(events.AlarmsTopic(alarm.Source), evt)
}

func copyAlarm(a *v1.Alarm) *v1.Alarm {
	cp := *a
	return &cp
}
