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

package orbital_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	clocktesting "k8s.io/utils/clock/testing"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/orbital"
	"github.com/stellarops/stellarops/pkg/resilience"
	"github.com/stellarops/stellarops/pkg/test"
)

var _ = Describe("HTTPClient", func() {
	var clk *clocktesting.FakeClock
	var breaker *resilience.Breaker
	var client *orbital.HTTPClient
	var server *httptest.Server
	var requests atomic.Int64
	var respond func(w http.ResponseWriter, r *http.Request)

	newClient := func(opts ...orbital.HTTPOption) *orbital.HTTPClient {
		return orbital.NewHTTPClient(server.URL, breaker, opts...)
	}

	BeforeEach(func() {
		clk = clocktesting.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		breaker = resilience.NewBreaker("orbital", resilience.Settings{
			FailureThreshold: 3,
			FailureWindow:    30 * time.Second,
			ResetTimeout:     15 * time.Second,
		}, clk)
		requests.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			respond(w, r)
		}))
		DeferCleanup(server.Close)
		client = newClient()
	})

	succeedWith := func(body string) {
		respond = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	failWith := func(status int) {
		respond = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}
	}

	Context("PropagatePosition", func() {
		It("should decode the propagated state vector", func() {
			succeedWith(`{
				"success": true,
				"position": {"x_km": 6871, "y_km": 12, "z_km": -4},
				"velocity": {"vx_km_s": 0.1, "vy_km_s": 7.6, "vz_km_s": 0},
				"geodetic": {"latitude_deg": 47.6, "longitude_deg": -122.3, "altitude_km": 500}
			}`)

			result, err := client.PropagatePosition(ctx, "SAT-1", *test.TLE(), clk.Now())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Position).To(Equal(v1.Vector3{X: 6871, Y: 12, Z: -4}))
			Expect(result.Velocity.Y).To(BeNumerically("==", 7.6))
			Expect(result.Geodetic.AltitudeKM).To(BeNumerically("==", 500))
		})
		It("should surface service-reported failures", func() {
			succeedWith(`{"success": false, "error_message": "tle parse error"}`)
			_, err := client.PropagatePosition(ctx, "SAT-1", *test.TLE(), clk.Now())
			Expect(err).To(MatchError(ContainSubstring("tle parse error")))
		})
		It("should reject a state vector with missing fields", func() {
			succeedWith(`{"success": true, "position": {"x_km": 6871}}`)
			_, err := client.PropagatePosition(ctx, "SAT-1", *test.TLE(), clk.Now())
			Expect(err).To(MatchError(ContainSubstring("missing state vector")))
		})
	})

	Context("Circuit breaking", func() {
		propagate := func() error {
			_, err := client.PropagatePosition(ctx, "SAT-1", *test.TLE(), clk.Now())
			return err
		}

		It("should open after repeated failures and stop calling the service", func() {
			failWith(http.StatusInternalServerError)
			for i := 0; i < 3; i++ {
				Expect(propagate()).To(HaveOccurred())
			}
			Expect(requests.Load()).To(BeEquivalentTo(3))

			Expect(errors.IsCircuitOpen(propagate())).To(BeTrue())
			Expect(requests.Load()).To(BeEquivalentTo(3))
		})
		It("should probe after the reset timeout and close on success", func() {
			failWith(http.StatusInternalServerError)
			for i := 0; i < 3; i++ {
				Expect(propagate()).To(HaveOccurred())
			}

			clk.Step(15 * time.Second)
			succeedWith(`{
				"success": true,
				"position": {"x_km": 6871, "y_km": 0, "z_km": 0},
				"velocity": {"vx_km_s": 0, "vy_km_s": 7.6, "vz_km_s": 0}
			}`)
			Expect(propagate()).To(Succeed())
			Expect(breaker.State()).To(Equal(resilience.Closed))
			Expect(propagate()).To(Succeed())
			Expect(requests.Load()).To(BeEquivalentTo(5))
		})
	})

	Context("PropagateTrajectory", func() {
		trajectoryBody := `{
			"success": true,
			"points": [
				{"timestamp_unix": 1000, "position": {"x_km": 6871, "y_km": 0, "z_km": 0}},
				{"timestamp_unix": 1060, "position": {"x_km": 6870, "y_km": 120, "z_km": 0}, "velocity": {"vx_km_s": -0.1, "vy_km_s": 7.6, "vz_km_s": 0}}
			]
		}`

		It("should decode the point series", func() {
			succeedWith(trajectoryBody)
			points, err := client.PropagateTrajectory(ctx, "SAT-1", *test.TLE(), clk.Now(), clk.Now().Add(time.Hour), 60)
			Expect(err).ToNot(HaveOccurred())
			Expect(points).To(HaveLen(2))
			Expect(points[0].Timestamp).To(BeEquivalentTo(1000))
			Expect(points[0].Velocity).To(BeNil())
			Expect(points[1].Velocity).To(HaveValue(Equal(v1.Vector3{X: -0.1, Y: 7.6, Z: 0})))
		})
		It("should reject oversized trajectories before calling the service", func() {
			_, err := client.PropagateTrajectory(ctx, "SAT-1", *test.TLE(), clk.Now(), clk.Now().Add(200*time.Hour), 60)
			Expect(err).To(MatchError(ContainSubstring("max is 10000")))
			Expect(requests.Load()).To(BeZero())
		})
		It("should reject a non-positive step and an inverted window", func() {
			_, err := client.PropagateTrajectory(ctx, "SAT-1", *test.TLE(), clk.Now(), clk.Now().Add(time.Hour), 0)
			Expect(err).To(HaveOccurred())
			_, err = client.PropagateTrajectory(ctx, "SAT-1", *test.TLE(), clk.Now(), clk.Now().Add(-time.Hour), 60)
			Expect(err).To(HaveOccurred())
			Expect(requests.Load()).To(BeZero())
		})
		It("should serve repeated requests from the cache", func() {
			succeedWith(trajectoryBody)
			start, end := clk.Now(), clk.Now().Add(time.Hour)
			first, err := client.PropagateTrajectory(ctx, "SAT-1", *test.TLE(), start, end, 60)
			Expect(err).ToNot(HaveOccurred())
			second, err := client.PropagateTrajectory(ctx, "SAT-1", *test.TLE(), start, end, 60)
			Expect(err).ToNot(HaveOccurred())
			Expect(second).To(Equal(first))
			Expect(requests.Load()).To(BeEquivalentTo(1))

			_, err = client.PropagateTrajectory(ctx, "SAT-2", *test.TLE(), start, end, 60)
			Expect(err).ToNot(HaveOccurred())
			Expect(requests.Load()).To(BeEquivalentTo(2))
		})
	})

	Context("CalculateVisibility", func() {
		It("should decode the pass list", func() {
			succeedWith(`{
				"success": true,
				"passes": [{"aos_timestamp": 1000, "los_timestamp": 1600, "max_elevation_deg": 45, "duration_seconds": 600}]
			}`)
			passes, err := client.CalculateVisibility(ctx, "SAT-1", *test.TLE(), test.GroundStation(), clk.Now(), clk.Now().Add(time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(passes).To(HaveLen(1))
			Expect(passes[0].MaxElevationDeg).To(BeNumerically("==", 45))
			Expect(passes[0].DurationSeconds).To(BeEquivalentTo(600))
		})
	})

	Context("Health", func() {
		It("should decode the health report", func() {
			succeedWith(`{"healthy": true, "version": "2.3.1", "uptime_seconds": 86400}`)
			health, err := client.Health(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(health.Healthy).To(BeTrue())
			Expect(health.Version).To(Equal("2.3.1"))
			Expect(health.UptimeSeconds).To(BeEquivalentTo(86400))
		})
	})

	Context("Timeouts", func() {
		It("should classify a slow response as a timeout", func() {
			respond = func(w http.ResponseWriter, _ *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			}
			client = newClient(orbital.WithTimeout(50 * time.Millisecond))
			_, err := client.PropagatePosition(ctx, "SAT-1", *test.TLE(), clk.Now())
			Expect(errors.IsTimeout(err)).To(BeTrue())
		})
	})
})
