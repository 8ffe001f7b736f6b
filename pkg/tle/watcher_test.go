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

package tle_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stellarops/stellarops/pkg/alarms"
	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/ssa/conjunction"
	"github.com/stellarops/stellarops/pkg/storage/inmemory"
	"github.com/stellarops/stellarops/pkg/test"
	"github.com/stellarops/stellarops/pkg/tle"
	"github.com/stellarops/stellarops/pkg/utils/ids"
)

var _ = Describe("Watcher", func() {
	var clk *clocktesting.FakeClock
	var flt *fleet.Fleet
	var catalog *conjunction.Catalog
	var alarmBus *alarms.Bus
	var watcher *tle.Watcher

	BeforeEach(func() {
		clk = clocktesting.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		flt = fleet.New(clk, fleet.NewLocalRegistry(), inmemory.NewSatelliteStore())
		catalog = conjunction.NewCatalog()
		alarmBus = alarms.NewBus(ctx, clk, ids.NewSequential(), inmemory.NewAlarmStore(), events.NewBus())
		watcher = tle.NewWatcher(clk, flt, catalog, alarmBus)
	})
	AfterEach(func() {
		for _, id := range flt.List() {
			Expect(flt.Stop(ctx, id)).To(Succeed())
		}
	})

	It("should count fleet and catalog element sets in one sweep", func() {
		Expect(flt.Start(ctx, "SAT-1", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
		Expect(flt.Start(ctx, "SAT-2", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
		Expect(flt.Start(ctx, "SAT-3", fleet.StartOptions{Energy: 90})).To(Succeed())
		catalog.Upsert(conjunction.Object{ID: "OBJ-1", TLE: *test.TLE(), UpdatedAt: lo.ToPtr(clk.Now().UTC())})
		catalog.Upsert(conjunction.Object{ID: "OBJ-2", TLE: *test.TLE()})

		stats := watcher.Sweep(ctx)
		Expect(stats).To(Equal(tle.Stats{Total: 5, WithTLE: 4, Fresh: 3, Stale: 1, NeverUpdated: 1}))
		Expect(watcher.Stats()).To(Equal(stats))
	})

	It("should stay quiet while everything is fresh", func() {
		Expect(flt.Start(ctx, "SAT-1", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
		stats := watcher.Sweep(ctx)
		Expect(stats.Stale).To(BeZero())
		Expect(alarmBus.List(alarms.Filter{})).To(BeEmpty())
	})

	It("should warn when any element set outlives the freshness window", func() {
		Expect(flt.Start(ctx, "SAT-1", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
		clk.Step(25 * time.Hour)
		Expect(flt.Start(ctx, "SAT-2", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())

		stats := watcher.Sweep(ctx)
		Expect(stats.Stale).To(Equal(1))
		Expect(stats.Fresh).To(Equal(1))

		raised := alarmBus.List(alarms.Filter{})
		Expect(raised).To(HaveLen(1))
		Expect(raised[0].Type).To(Equal("stale_tle_data"))
		Expect(raised[0].Severity).To(Equal(v1.SeverityWarning))
		Expect(raised[0].Source).To(Equal("system:tle_watcher"))
	})

	It("should not escalate at exactly half stale", func() {
		Expect(flt.Start(ctx, "SAT-1", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
		clk.Step(25 * time.Hour)
		Expect(flt.Start(ctx, "SAT-2", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())

		stats := watcher.Sweep(ctx)
		Expect(stats.StaleFraction()).To(BeNumerically("==", 0.5))
		Expect(alarmBus.List(alarms.Filter{})).To(HaveLen(1))
	})

	It("should escalate once most element sets are stale", func() {
		Expect(flt.Start(ctx, "SAT-1", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
		Expect(flt.Start(ctx, "SAT-2", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
		clk.Step(25 * time.Hour)
		Expect(flt.Start(ctx, "SAT-3", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())

		stats := watcher.Sweep(ctx)
		Expect(stats.StaleFraction()).To(BeNumerically(">", 0.5))

		raised := alarmBus.List(alarms.Filter{})
		Expect(raised).To(HaveLen(2))
		types := lo.Map(raised, func(a *v1.Alarm, _ int) string { return a.Type })
		Expect(types).To(ConsistOf("stale_tle_data", "critical_tle_staleness"))
		escalation, found := lo.Find(raised, func(a *v1.Alarm) bool { return a.Type == "critical_tle_staleness" })
		Expect(found).To(BeTrue())
		Expect(escalation.Severity).To(Equal(v1.SeverityMajor))
	})

	It("should honor a custom freshness window", func() {
		watcher = tle.NewWatcher(clk, flt, catalog, alarmBus, tle.WithFreshnessWindow(time.Hour))
		Expect(flt.Start(ctx, "SAT-1", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
		clk.Step(2 * time.Hour)

		Expect(watcher.Sweep(ctx).Stale).To(Equal(1))
	})
})
