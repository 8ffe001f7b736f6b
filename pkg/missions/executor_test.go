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
	stderrors "errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/stellarops/stellarops/pkg/alarms"
	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/test"
)

type recordingRequeuer struct {
	mu        sync.Mutex
	reinserts int
}

func (r *recordingRequeuer) Reinsert(_ context.Context, _ *v1.Mission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reinserts++
}

func (r *recordingRequeuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reinserts
}

type recordingHandler struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	reason    string
}

func (h *recordingHandler) HandleMissionComplete(_ context.Context, m *v1.Mission) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, m.ID)
}

func (h *recordingHandler) HandleMissionFailure(_ context.Context, m *v1.Mission, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, m.ID)
	h.reason = reason
}

var _ = Describe("Executor", func() {
	var handler *recordingHandler
	var requeuer *recordingRequeuer

	scheduled := func(overrides ...v1.Mission) *v1.Mission {
		m := test.Mission(append([]v1.Mission{{SatelliteID: "SAT-1"}}, overrides...)...)
		m.Status = v1.MissionScheduled
		m.CreatedAt = clk.Now().UTC()
		Expect(store.Missions().Insert(ctx, m)).To(Succeed())
		return m
	}

	BeforeEach(func() {
		handler = &recordingHandler{}
		requeuer = &recordingRequeuer{}
		Expect(flt.Start(ctx, "SAT-1", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
	})

	Context("Success", func() {
		It("should run the mission to completion and debit resources", func() {
			executor := NewExecutor(clk, store.Missions(), flt, alarmBus, eventBus)
			executor.RegisterHandler(handler)
			m := scheduled(v1.Mission{ID: "msn-1", RequiredEnergy: 10, RequiredMemory: 5})
			sub := eventBus.Subscribe(events.TopicMissionsAll)
			defer sub.Unsubscribe()

			executor.Dispatch(ctx, m)
			executor.Wait()

			stored := lo.Must(store.Missions().Get(ctx, "msn-1"))
			Expect(stored.Status).To(Equal(v1.MissionCompleted))
			Expect(stored.CompletedAt).To(HaveValue(Equal(clk.Now().UTC())))

			sat := lo.Must(flt.GetState("SAT-1"))
			Expect(sat.Energy).To(BeNumerically("==", 80))
			Expect(sat.MemoryUsed).To(BeNumerically("==", 5))

			Expect((<-sub.C()).Kind).To(Equal(events.KindMissionStarted))
			Expect((<-sub.C()).Kind).To(Equal(events.KindMissionCompleted))
			Expect(handler.completed).To(Equal([]string{"msn-1"}))
		})
		It("should run a custom work function instead of the resource debit", func() {
			var ran bool
			executor := NewExecutor(clk, store.Missions(), flt, alarmBus, eventBus,
				WithWork(func(_ context.Context, _ *v1.Mission) error {
					ran = true
					return nil
				}))
			executor.Dispatch(ctx, scheduled(v1.Mission{ID: "msn-1"}))
			executor.Wait()

			Expect(ran).To(BeTrue())
			sat := lo.Must(flt.GetState("SAT-1"))
			Expect(sat.Energy).To(BeNumerically("==", 90))
		})
		It("should refuse to run a mission that is not scheduled", func() {
			executor := NewExecutor(clk, store.Missions(), flt, alarmBus, eventBus)
			executor.RegisterHandler(handler)
			m := scheduled(v1.Mission{ID: "msn-1"})
			m.Status = v1.MissionPending
			Expect(store.Missions().Update(ctx, m)).To(Succeed())

			executor.Dispatch(ctx, m)
			executor.Wait()

			stored := lo.Must(store.Missions().Get(ctx, "msn-1"))
			Expect(stored.Status).To(Equal(v1.MissionPending))
			Expect(handler.completed).To(BeEmpty())
		})
		It("should not run a mission canceled after admission", func() {
			executor := NewExecutor(clk, store.Missions(), flt, alarmBus, eventBus)
			executor.RegisterHandler(handler)
			m := scheduled(v1.Mission{ID: "msn-1", RequiredEnergy: 10})
			canceled := *m
			canceled.Status = v1.MissionCanceled
			Expect(store.Missions().Update(ctx, &canceled)).To(Succeed())
			sub := eventBus.Subscribe(events.TopicMissionsAll)
			defer sub.Unsubscribe()

			// The worker still holds the scheduled copy; the store is
			// authoritative.
			executor.Dispatch(ctx, m)
			executor.Wait()

			stored := lo.Must(store.Missions().Get(ctx, "msn-1"))
			Expect(stored.Status).To(Equal(v1.MissionCanceled))
			sat := lo.Must(flt.GetState("SAT-1"))
			Expect(sat.Energy).To(BeNumerically("==", 90))
			Expect(sub.C()).ToNot(Receive())
			Expect(handler.completed).To(BeEmpty())
		})
	})

	Context("Retries", func() {
		var executor *Executor
		var m *v1.Mission

		BeforeEach(func() {
			executor = NewExecutor(clk, store.Missions(), flt, alarmBus, eventBus,
				WithWork(func(_ context.Context, _ *v1.Mission) error {
					return stderrors.New("thruster fault")
				}))
			executor.BindRequeuer(requeuer)
			executor.RegisterHandler(handler)
			m = scheduled(v1.Mission{ID: "msn-1", MaxRetries: 3})
		})

		retry := func() *v1.Mission {
			GinkgoHelper()
			executor.Dispatch(ctx, m)
			executor.Wait()
			return lo.Must(store.Missions().Get(ctx, "msn-1"))
		}

		It("should reschedule with exponential backoff until the budget is spent", func() {
			stored := retry()
			Expect(stored.Status).To(Equal(v1.MissionScheduled))
			Expect(stored.RetryCount).To(Equal(1))
			Expect(stored.ScheduledStart).To(HaveValue(Equal(clk.Now().UTC().Add(10 * time.Second))))
			Expect(requeuer.count()).To(Equal(1))

			clk.Step(time.Minute)
			stored = retry()
			Expect(stored.RetryCount).To(Equal(2))
			Expect(stored.ScheduledStart).To(HaveValue(Equal(clk.Now().UTC().Add(20 * time.Second))))

			clk.Step(time.Minute)
			stored = retry()
			Expect(stored.RetryCount).To(Equal(3))
			Expect(stored.ScheduledStart).To(HaveValue(Equal(clk.Now().UTC().Add(40 * time.Second))))
			Expect(requeuer.count()).To(Equal(3))

			clk.Step(time.Minute)
			stored = retry()
			Expect(stored.Status).To(Equal(v1.MissionFailed))
			Expect(stored.FailureReason).To(Equal("thruster fault"))
			Expect(requeuer.count()).To(Equal(3))
			Expect(handler.failed).To(Equal([]string{"msn-1"}))
			Expect(handler.reason).To(Equal("thruster fault"))
		})
		It("should escalate the alarm severity across retries", func() {
			for i := 0; i < 4; i++ {
				retry()
				clk.Step(time.Minute)
			}
			raised := alarmBus.List(alarms.Filter{SourcePrefix: "mission:"})
			Expect(raised).To(HaveLen(4))
			// Most recent first.
			Expect(raised[0].Type).To(Equal("mission_permanent_failure"))
			Expect(raised[0].Severity).To(Equal(v1.SeverityCritical))
			Expect(raised[1].Type).To(Equal("mission_failure"))
			Expect(raised[1].Severity).To(Equal(v1.SeverityMajor))
			Expect(raised[2].Severity).To(Equal(v1.SeverityWarning))
			Expect(raised[3].Severity).To(Equal(v1.SeverityWarning))
		})
	})

	Context("Backoff", func() {
		It("should double from ten seconds and cap at ten minutes", func() {
			Expect(retryBackoff(1)).To(Equal(10 * time.Second))
			Expect(retryBackoff(2)).To(Equal(20 * time.Second))
			Expect(retryBackoff(3)).To(Equal(40 * time.Second))
			Expect(retryBackoff(7)).To(Equal(10 * time.Minute))
			Expect(retryBackoff(100)).To(Equal(10 * time.Minute))
		})
	})
})
