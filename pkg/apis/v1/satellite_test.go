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

package v1_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
)

var _ = Describe("Satellite", func() {
	Context("DeriveMode", func() {
		DescribeTable("should apply the hysteretic thresholds",
			func(current v1.SatelliteMode, energy float64, expected v1.SatelliteMode) {
				Expect(v1.DeriveMode(current, energy)).To(Equal(expected))
			},
			Entry("nominal stays nominal with plenty of energy", v1.ModeNominal, 90.0, v1.ModeNominal),
			Entry("nominal drops to safe below twenty", v1.ModeNominal, 19.9, v1.ModeSafe),
			Entry("nominal holds at exactly twenty", v1.ModeNominal, 20.0, v1.ModeNominal),
			Entry("any mode drops to survival below five", v1.ModeNominal, 4.9, v1.ModeSurvival),
			Entry("survival holds at exactly five", v1.ModeSurvival, 5.0, v1.ModeSurvival),
			Entry("survival holds below the recovery level", v1.ModeSurvival, 9.9, v1.ModeSurvival),
			Entry("survival recovers to safe at ten", v1.ModeSurvival, 10.0, v1.ModeSafe),
			Entry("survival never recovers straight to nominal", v1.ModeSurvival, 95.0, v1.ModeSafe),
			Entry("safe holds below the recovery level", v1.ModeSafe, 29.9, v1.ModeSafe),
			Entry("safe recovers to nominal at thirty", v1.ModeSafe, 30.0, v1.ModeNominal),
		)
	})

	Context("ClampResource", func() {
		It("should bound values to the percent range", func() {
			Expect(v1.ClampResource(-3)).To(BeZero())
			Expect(v1.ClampResource(0)).To(BeZero())
			Expect(v1.ClampResource(42.5)).To(BeNumerically("==", 42.5))
			Expect(v1.ClampResource(100)).To(BeNumerically("==", 100))
			Expect(v1.ClampResource(150)).To(BeNumerically("==", 100))
		})
	})

	Context("TLE", func() {
		It("should require both lines", func() {
			Expect((*v1.TLE)(nil).Valid()).To(BeFalse())
			Expect((&v1.TLE{Line1: "1"}).Valid()).To(BeFalse())
			Expect((&v1.TLE{Line1: "1", Line2: "2"}).Valid()).To(BeTrue())
		})
	})
})
