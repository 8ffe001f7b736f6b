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

package alarms_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stellarops/stellarops/pkg/alarms"
	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/storage/inmemory"
	"github.com/stellarops/stellarops/pkg/utils/ids"
)

var _ = Describe("Bus", func() {
	var clk *clocktesting.FakeClock
	var store *inmemory.AlarmStore
	var eventBus *events.Bus
	var bus *alarms.Bus

	spec := func(severity v1.AlarmSeverity) alarms.Spec {
		return alarms.Spec{
			Type:     "conjunction_detected",
			Severity: severity,
			Message:  "object within 0.8 km",
			Source:   v1.SatelliteSource("SAT-1"),
		}
	}

	BeforeEach(func() {
		clk = clocktesting.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		store = inmemory.NewAlarmStore()
		eventBus = events.NewBus()
		bus = alarms.NewBus(ctx, clk, ids.NewSequential(), store, eventBus)
	})

	Context("Raise", func() {
		It("should mint a prefixed id and start the alarm active", func() {
			alarm := bus.Raise(ctx, spec(v1.SeverityCritical))
			Expect(alarm.ID).To(HavePrefix("alm-"))
			Expect(alarm.Status).To(Equal(v1.AlarmActive))
			Expect(alarm.CreatedAt).To(Equal(clk.Now().UTC()))
		})
		It("should persist the alarm", func() {
			alarm := bus.Raise(ctx, spec(v1.SeverityMajor))
			unresolved, err := store.ListUnresolved(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(unresolved).To(HaveLen(1))
			Expect(unresolved[0].ID).To(Equal(alarm.ID))
		})
		It("should broadcast on the all-alarms topic and the per-source topic", func() {
			all := eventBus.Subscribe(events.TopicAlarmsAll)
			defer all.Unsubscribe()
			source := eventBus.Subscribe(events.AlarmsTopic(v1.SatelliteSource("SAT-1")))
			defer source.Unsubscribe()
			bus.Raise(ctx, spec(v1.SeverityMinor))
			Expect((<-all.C()).Kind).To(Equal(events.KindAlarmRaised))
			Expect((<-source.C()).Kind).To(Equal(events.KindAlarmRaised))
		})
		It("should continue in memory when persistence fails", func() {
			store.SetError(fmt.Errorf("store unavailable"))
			alarm := bus.Raise(ctx, spec(v1.SeverityWarning))
			got, err := bus.Get(alarm.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Status).To(Equal(v1.AlarmActive))
		})
	})

	Context("Lifecycle", func() {
		It("should advance active to acknowledged to resolved", func() {
			alarm := bus.Raise(ctx, spec(v1.SeverityMajor))
			clk.Step(time.Minute)
			Expect(bus.Acknowledge(ctx, alarm.ID, "operator-7")).To(Succeed())
			got, _ := bus.Get(alarm.ID)
			Expect(got.Status).To(Equal(v1.AlarmAcknowledged))
			Expect(got.AcknowledgedBy).To(Equal("operator-7"))
			Expect(got.AcknowledgedAt).To(HaveValue(Equal(clk.Now().UTC())))

			clk.Step(time.Minute)
			Expect(bus.Resolve(ctx, alarm.ID)).To(Succeed())
			got, _ = bus.Get(alarm.ID)
			Expect(got.Status).To(Equal(v1.AlarmResolved))
			Expect(got.ResolvedAt).To(HaveValue(Equal(clk.Now().UTC())))
		})
		It("should allow resolving straight from active", func() {
			alarm := bus.Raise(ctx, spec(v1.SeverityMinor))
			Expect(bus.Resolve(ctx, alarm.ID)).To(Succeed())
			got, _ := bus.Get(alarm.ID)
			Expect(got.Status).To(Equal(v1.AlarmResolved))
		})
		It("should never regress a resolved alarm", func() {
			alarm := bus.Raise(ctx, spec(v1.SeverityMinor))
			Expect(bus.Resolve(ctx, alarm.ID)).To(Succeed())
			resolved, _ := bus.Get(alarm.ID)

			Expect(bus.Acknowledge(ctx, alarm.ID, "operator-7")).To(Succeed())
			got, _ := bus.Get(alarm.ID)
			Expect(got.Status).To(Equal(v1.AlarmResolved))
			Expect(got.ResolvedAt).To(Equal(resolved.ResolvedAt))
			Expect(got.AcknowledgedBy).To(BeEmpty())
		})
		It("should keep the first acknowledgement on re-acknowledge", func() {
			alarm := bus.Raise(ctx, spec(v1.SeverityMajor))
			Expect(bus.Acknowledge(ctx, alarm.ID, "operator-7")).To(Succeed())
			first, _ := bus.Get(alarm.ID)
			clk.Step(time.Minute)
			Expect(bus.Acknowledge(ctx, alarm.ID, "operator-8")).To(Succeed())
			got, _ := bus.Get(alarm.ID)
			Expect(got.AcknowledgedBy).To(Equal("operator-7"))
			Expect(got.AcknowledgedAt).To(Equal(first.AcknowledgedAt))
		})
		It("should return not found for unknown alarms", func() {
			Expect(errors.IsNotFound(bus.Acknowledge(ctx, "alm-404", "operator-7"))).To(BeTrue())
			Expect(errors.IsNotFound(bus.Resolve(ctx, "alm-404"))).To(BeTrue())
		})
	})

	Context("List", func() {
		It("should order most recent first", func() {
			first := bus.Raise(ctx, spec(v1.SeverityMinor))
			clk.Step(time.Minute)
			second := bus.Raise(ctx, spec(v1.SeverityMajor))
			clk.Step(time.Minute)
			third := bus.Raise(ctx, spec(v1.SeverityCritical))

			listed := bus.List(alarms.Filter{})
			Expect(lo.Map(listed, func(a *v1.Alarm, _ int) string { return a.ID })).
				To(Equal([]string{third.ID, second.ID, first.ID}))
		})
		It("should filter by status, severity, and source prefix", func() {
			critical := bus.Raise(ctx, spec(v1.SeverityCritical))
			minor := bus.Raise(ctx, spec(v1.SeverityMinor))
			Expect(bus.Resolve(ctx, minor.ID)).To(Succeed())
			bus.Raise(ctx, alarms.Spec{Type: "mission_failure", Severity: v1.SeverityWarning, Source: v1.MissionSource("msn-1")})

			active := bus.List(alarms.Filter{Status: lo.ToPtr(v1.AlarmActive)})
			Expect(active).To(HaveLen(2))

			criticals := bus.List(alarms.Filter{Severity: lo.ToPtr(v1.SeverityCritical)})
			Expect(criticals).To(HaveLen(1))
			Expect(criticals[0].ID).To(Equal(critical.ID))

			satellites := bus.List(alarms.Filter{SourcePrefix: "satellite:"})
			Expect(satellites).To(HaveLen(2))
		})
		It("should cap results at the limit", func() {
			for i := 0; i < 5; i++ {
				bus.Raise(ctx, spec(v1.SeverityMinor))
			}
			Expect(bus.List(alarms.Filter{Limit: 3})).To(HaveLen(3))
		})
	})

	Context("Summary", func() {
		It("should count by status and severity", func() {
			bus.Raise(ctx, spec(v1.SeverityCritical))
			bus.Raise(ctx, spec(v1.SeverityMajor))
			minor := bus.Raise(ctx, spec(v1.SeverityMinor))
			Expect(bus.Resolve(ctx, minor.ID)).To(Succeed())

			summary := bus.Summary()
			Expect(summary.ByStatus[v1.AlarmActive]).To(Equal(2))
			Expect(summary.ByStatus[v1.AlarmResolved]).To(Equal(1))
			Expect(summary.ActiveCritical).To(Equal(1))
			Expect(summary.ActiveMajor).To(Equal(1))
		})
	})

	Context("PurgeResolved", func() {
		It("should purge resolved alarms past retention and keep the rest", func() {
			old := bus.Raise(ctx, spec(v1.SeverityMinor))
			Expect(bus.Resolve(ctx, old.ID)).To(Succeed())
			clk.Step(25 * time.Hour)
			fresh := bus.Raise(ctx, spec(v1.SeverityMinor))
			Expect(bus.Resolve(ctx, fresh.ID)).To(Succeed())
			active := bus.Raise(ctx, spec(v1.SeverityMajor))

			Expect(bus.PurgeResolved(ctx, 24*time.Hour)).To(Equal(1))
			_, err := bus.Get(old.ID)
			Expect(errors.IsNotFound(err)).To(BeTrue())
			Expect(lo.Must(bus.Get(fresh.ID)).Status).To(Equal(v1.AlarmResolved))
			Expect(lo.Must(bus.Get(active.ID)).Status).To(Equal(v1.AlarmActive))
		})
	})

	Context("Rehydrate", func() {
		It("should reload unresolved alarms from the store", func() {
			raised := bus.Raise(ctx, spec(v1.SeverityMajor))
			resolved := bus.Raise(ctx, spec(v1.SeverityMinor))
			Expect(bus.Resolve(ctx, resolved.ID)).To(Succeed())

			rehydrated := alarms.NewBus(ctx, clk, ids.NewSequential(), store, eventBus)
			got, err := rehydrated.Get(raised.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Status).To(Equal(v1.AlarmActive))
			_, err = rehydrated.Get(resolved.ID)
			Expect(errors.IsNotFound(err)).To(BeTrue())
		})
	})
})
