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
	"container/heap"
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/storage"
	"github.com/stellarops/stellarops/pkg/utils/ids"
)

const (
	admissionInterval    = time.Second
	ineligibilityBackoff = 30 * time.Second
)

// Dispatcher receives admitted missions. The Executor implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, m *v1.Mission)
}

// item is a heap entry. notBefore delays reinserted missions after an
// eligibility failure without disturbing their ordering key.
type item struct {
	mission   *v1.Mission
	notBefore time.Time
	seq       uint64
	index     int
}

type missionHeap []*item

func (h missionHeap) Len() int { return len(h) }

// Less orders by priority, then deadline ascending with nil last, then
// enqueue order.
func (h missionHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if ra, rb := a.mission.Priority.Rank(), b.mission.Priority.Rank(); ra != rb {
		return ra < rb
	}
	da, db := a.mission.Deadline, b.mission.Deadline
	switch {
	case da != nil && db != nil && !da.Equal(*db):
		return da.Before(*db)
	case da != nil && db == nil:
		return true
	case da == nil && db != nil:
		return false
	}
	return a.seq < b.seq
}

func (h missionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *missionHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *missionHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Scheduler admits missions in (priority, deadline, enqueue-order) order and
// hands them to the executor once their satellite is eligible.
type Scheduler struct {
	clk        clock.WithTicker
	minter     ids.Minter
	store      storage.MissionStore
	validator  *Validator
	dispatcher Dispatcher
	events     *events.Bus

	mu    sync.Mutex
	queue missionHeap
	items map[string]*item
	seq   uint64
}

func NewScheduler(clk clock.WithTicker, minter ids.Minter, store storage.MissionStore, validator *Validator, dispatcher Dispatcher, eventBus *events.Bus) *Scheduler {
	return &Scheduler{
		clk:        clk,
		minter:     minter,
		store:      store,
		validator:  validator,
		dispatcher: dispatcher,
		events:     eventBus,
		items:      map[string]*item{},
	}
}

// Enqueue validates and queues a new mission. The returned id is minted here
// when the caller left it empty.
func (s *Scheduler) Enqueue(ctx context.Context, m *v1.Mission) (string, error) {
	if err := s.validator.Validate(ctx, m, ValidateOptions{}); err != nil {
		return "", err
	}
	now := s.clk.Now().UTC()
	if m.ID == "" {
		m.ID = s.minter.New(ids.MissionPrefix)
	}
	m.Status = v1.MissionPending
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := s.store.Insert(ctx, m); err != nil {
		return "", err
	}
	s.push(m, now)
	enqueuedTotal.WithLabelValues(string(m.Priority)).Inc()
	logging.FromContext(ctx).With("mission-id", m.ID, "type", m.Type, "priority", string(m.Priority)).
		Infof("enqueued mission")
	return m.ID, nil
}

// Reinsert returns a retried mission to the queue. The mission keeps its id
// and ordering key; its scheduled start carries the backoff.
func (s *Scheduler) Reinsert(ctx context.Context, m *v1.Mission) {
	notBefore := s.clk.Now().UTC()
	if m.ScheduledStart != nil && m.ScheduledStart.After(notBefore) {
		notBefore = *m.ScheduledStart
	}
	s.push(m, notBefore)
}

// Cancel stops a mission that has not started running. Cancelling an already
// canceled mission is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	it, queued := s.items[id]
	var m *v1.Mission
	if queued {
		m = it.mission
		heap.Remove(&s.queue, it.index)
		delete(s.items, id)
		queueDepth.Set(float64(len(s.queue)))
	}
	s.mu.Unlock()

	if !queued {
		stored, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if stored.Status == v1.MissionCanceled {
			return nil
		}
		if !stored.Status.Cancelable() {
			return errors.NewInvalidState("mission", id, string(stored.Status), "only pending or scheduled missions can be canceled")
		}
		m = stored
	}
	if m.Status == v1.MissionCanceled {
		return nil
	}
	m.Status = v1.MissionCanceled
	m.UpdatedAt = s.clk.Now().UTC()
	if err := s.store.Update(ctx, m); err != nil {
		logging.FromContext(ctx).With("mission-id", id).Warnf("persisting cancellation, %v", err)
	}
	s.publish(events.KindMissionCanceled, m)
	logging.FromContext(ctx).With("mission-id", id).Infof("canceled mission")
	return nil
}

// Rehydrate reloads pending and scheduled missions from the store. Scheduled
// missions go straight back to the executor.
func (s *Scheduler) Rehydrate(ctx context.Context) error {
	missions, err := s.store.ListByStatus(ctx, v1.MissionPending, v1.MissionScheduled)
	if err != nil {
		return err
	}
	now := s.clk.Now().UTC()
	for _, m := range missions {
		switch m.Status {
		case v1.MissionScheduled:
			s.dispatcher.Dispatch(ctx, m)
		default:
			s.push(m, now)
		}
	}
	if len(missions) > 0 {
		logging.FromContext(ctx).With("count", len(missions)).Infof("rehydrated missions")
	}
	return nil
}

// Run drives the admission loop until the context is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clk.NewTicker(admissionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.admit(ctx)
		}
	}
}

// admit drains the queue in priority order, admitting each due, eligible
// mission and pushing the rest back. Ineligible missions carry a backoff so
// they don't spin against a busy satellite.
func (s *Scheduler) admit(ctx context.Context) {
	now := s.clk.Now().UTC()
	var back []*item
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			break
		}
		it := heap.Pop(&s.queue).(*item)
		delete(s.items, it.mission.ID)
		s.mu.Unlock()

		m := it.mission
		if it.notBefore.After(now) || (m.ScheduledStart != nil && m.ScheduledStart.After(now)) {
			back = append(back, it)
			continue
		}
		if err := s.validator.ValidateForExecution(ctx, m); err != nil {
			logging.FromContext(ctx).With("mission-id", m.ID).
				Debugf("mission not eligible, retrying in %s, %v", ineligibilityBackoff, err)
			it.notBefore = now.Add(ineligibilityBackoff)
			back = append(back, it)
			continue
		}
		m.Status = v1.MissionScheduled
		m.UpdatedAt = now
		if err := s.store.Update(ctx, m); err != nil {
			logging.FromContext(ctx).With("mission-id", m.ID).Warnf("persisting admission, %v", err)
		}
		s.publish(events.KindMissionScheduled, m)
		s.dispatcher.Dispatch(ctx, m)
	}
	s.mu.Lock()
	for _, it := range back {
		heap.Push(&s.queue, it)
		s.items[it.mission.ID] = it
	}
	queueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()
}

// Depth reports how many missions are queued.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) push(m *v1.Mission, notBefore time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	it := &item{mission: m, notBefore: notBefore, seq: s.seq}
	heap.Push(&s.queue, it)
	s.items[m.ID] = it
	queueDepth.Set(float64(len(s.queue)))
}

func (s *Scheduler) publish(kind string, m *v1.Mission) {
	cp := *m
	evt := events.Event{Kind: kind, Payload: &cp, Timestamp: s.clk.Now().UTC()}
	s.events.Publish(events.MissionTopic(m.ID), evt)
}
