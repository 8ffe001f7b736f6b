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

package conjunction

import (
	stderrors "errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stellarops/stellarops/pkg/alarms"
	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/orbital"
	"github.com/stellarops/stellarops/pkg/storage/inmemory"
	"github.com/stellarops/stellarops/pkg/test"
	"github.com/stellarops/stellarops/pkg/utils/ids"
)

var _ = Describe("Detector", func() {
	var clk *clocktesting.FakeClock
	var store *inmemory.ConjunctionStore
	var eventBus *events.Bus
	var alarmBus *alarms.Bus
	var flt *fleet.Fleet
	var fake *orbital.Fake
	var catalog *Catalog
	var detector *Detector
	var assetOrbit orbital.OrbitFunc

	approachAt := func(missKM float64, closestAt int64) {
		catalog.Upsert(Object{ID: "OBJ-1", Name: "debris", TLE: *test.TLE()})
		fake.SetOrbit("OBJ-1", orbital.LinearApproach(assetOrbit, missKM, closestAt, 0.05))
	}

	BeforeEach(func() {
		clk = clocktesting.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		store = inmemory.NewConjunctionStore()
		eventBus = events.NewBus()
		alarmBus = alarms.NewBus(ctx, clk, ids.NewSequential(), inmemory.NewAlarmStore(), eventBus)
		flt = fleet.New(clk, fleet.NewLocalRegistry(), inmemory.NewSatelliteStore())
		fake = orbital.NewFake()
		catalog = NewCatalog()
		detector = NewDetector(Config{Horizon: 12 * time.Hour}, clk, ids.NewSequential(), fake, flt, catalog, store, alarmBus, eventBus)

		assetOrbit = orbital.CircularOrbit(6871, 5400, 0)
		fake.SetOrbit("SAT-1", assetOrbit)
		Expect(flt.Start(ctx, "SAT-1", fleet.StartOptions{Energy: 90, TLE: test.TLE()})).To(Succeed())
	})
	AfterEach(func() {
		for _, id := range flt.List() {
			Expect(flt.Stop(ctx, id)).To(Succeed())
		}
	})

	Context("Detection", func() {
		It("should record a close approach inside the screening threshold", func() {
			tca := clk.Now().Unix() + 6*3600
			approachAt(0.8, tca)
			sub := eventBus.Subscribe(events.TopicConjunctions)
			defer sub.Unsubscribe()

			Expect(detector.RunCycle(ctx)).To(Succeed())

			live := lo.Must(store.ListLive(ctx))
			Expect(live).To(HaveLen(1))
			cj := live[0]
			Expect(cj.ID).To(HavePrefix("cj-"))
			Expect(cj.AssetID).To(Equal("SAT-1"))
			Expect(cj.SecondaryObjectID).To(Equal("OBJ-1"))
			Expect(cj.Status).To(Equal(v1.ConjunctionPredicted))
			Expect(cj.TCA).To(Equal(time.Unix(tca, 0).UTC()))
			Expect(cj.MissDistanceKM).To(BeNumerically("~", 0.8, 1e-9))
			Expect(cj.RelativeVelocityKMS).To(BeNumerically("~", 0.05, 1e-9))
			Expect(cj.Severity).To(Equal(v1.ConjunctionCritical))

			Expect((<-sub.C()).Kind).To(Equal(events.KindConjunctionDetected))
		})
		It("should raise a critical alarm against the asset", func() {
			approachAt(0.8, clk.Now().Unix()+6*3600)
			Expect(detector.RunCycle(ctx)).To(Succeed())

			raised := alarmBus.List(alarms.Filter{SourcePrefix: v1.SatelliteSource("SAT-1")})
			Expect(raised).To(HaveLen(1))
			Expect(raised[0].Type).To(Equal("conjunction_detected"))
			Expect(raised[0].Severity).To(Equal(v1.SeverityCritical))
		})
		It("should map a medium-severity approach to a minor alarm", func() {
			approachAt(7, clk.Now().Unix()+6*3600)
			Expect(detector.RunCycle(ctx)).To(Succeed())

			live := lo.Must(store.ListLive(ctx))
			Expect(live).To(HaveLen(1))
			Expect(live[0].Severity).To(Equal(v1.ConjunctionMedium))
			raised := alarmBus.List(alarms.Filter{})
			Expect(raised).To(HaveLen(1))
			Expect(raised[0].Severity).To(Equal(v1.SeverityMinor))
		})
		It("should ignore approaches beyond the screening threshold", func() {
			approachAt(15, clk.Now().Unix()+6*3600)
			Expect(detector.RunCycle(ctx)).To(Succeed())

			Expect(lo.Must(store.ListLive(ctx))).To(BeEmpty())
			Expect(alarmBus.List(alarms.Filter{})).To(BeEmpty())
		})
		It("should refresh a live conjunction without raising a second alarm", func() {
			tca := clk.Now().Unix() + 6*3600
			approachAt(0.8, tca)
			Expect(detector.RunCycle(ctx)).To(Succeed())

			clk.Step(time.Minute)
			Expect(detector.RunCycle(ctx)).To(Succeed())

			live := lo.Must(store.ListLive(ctx))
			Expect(live).To(HaveLen(1))
			Expect(live[0].UpdatedAt).To(Equal(clk.Now().UTC()))
			Expect(alarmBus.List(alarms.Filter{})).To(HaveLen(1))
		})
		It("should skip catalog objects whose propagation fails", func() {
			approachAt(0.8, clk.Now().Unix()+6*3600)
			fake.FailWith(stderrors.New("propagator offline"))
			Expect(detector.RunCycle(ctx)).To(Succeed())
			Expect(lo.Must(store.ListLive(ctx))).To(BeEmpty())
		})
	})

	Context("Expiry", func() {
		It("should expire live conjunctions whose approach time has passed", func() {
			cj := test.Conjunction(clk.Now().UTC(), v1.Conjunction{
				ID:      "cj-old",
				AssetID: "SAT-1",
				TCA:     clk.Now().UTC().Add(-time.Minute),
			})
			Expect(store.Insert(ctx, cj)).To(Succeed())
			sub := eventBus.Subscribe(events.TopicConjunctions)
			defer sub.Unsubscribe()

			Expect(detector.RunCycle(ctx)).To(Succeed())

			stored := lo.Must(store.Get(ctx, "cj-old"))
			Expect(stored.Status).To(Equal(v1.ConjunctionExpired))
			Expect((<-sub.C()).Kind).To(Equal(events.KindConjunctionExpired))
			Expect(alarmBus.List(alarms.Filter{})).To(BeEmpty())
		})
		It("should leave future conjunctions alone", func() {
			cj := test.Conjunction(clk.Now().UTC(), v1.Conjunction{ID: "cj-future", AssetID: "SAT-1"})
			Expect(store.Insert(ctx, cj)).To(Succeed())

			Expect(detector.RunCycle(ctx)).To(Succeed())
			Expect(lo.Must(store.Get(ctx, "cj-future")).Status).To(Equal(v1.ConjunctionPredicted))
		})
	})

	Context("closestApproach", func() {
		point := func(ts int64, z float64) v1.TrajectoryPoint {
			return v1.TrajectoryPoint{Timestamp: ts, Position: v1.Vector3{Z: z}}
		}
		asset := map[int64]v1.Vector3{0: {}, 60: {}, 120: {}}

		It("should pick the minimum-distance aligned point", func() {
			ap, found := closestApproach(asset, []v1.TrajectoryPoint{point(0, 5), point(60, 2), point(120, 4)})
			Expect(found).To(BeTrue())
			Expect(ap.timestamp).To(Equal(int64(60)))
			Expect(ap.distanceKM).To(BeNumerically("~", 2, 1e-9))
		})
		It("should break distance ties to the earliest timestamp", func() {
			ap, found := closestApproach(asset, []v1.TrajectoryPoint{point(0, 5), point(60, 3), point(120, 3)})
			Expect(found).To(BeTrue())
			Expect(ap.timestamp).To(Equal(int64(60)))
		})
		It("should derive the relative speed by finite difference", func() {
			ap, found := closestApproach(asset, []v1.TrajectoryPoint{point(0, 2), point(60, 5)})
			Expect(found).To(BeTrue())
			Expect(ap.timestamp).To(BeZero())
			Expect(ap.relVelKMS).To(BeNumerically("~", 0.05, 1e-9))
		})
		It("should report no approach when the trajectories never align", func() {
			_, found := closestApproach(asset, []v1.TrajectoryPoint{point(30, 1)})
			Expect(found).To(BeFalse())
		})
	})
})
