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

var _ = Describe("Alarm", func() {
	Context("Status", func() {
		It("should only ever advance", func() {
			Expect(v1.AlarmActive.Advances(v1.AlarmAcknowledged)).To(BeTrue())
			Expect(v1.AlarmActive.Advances(v1.AlarmResolved)).To(BeTrue())
			Expect(v1.AlarmAcknowledged.Advances(v1.AlarmResolved)).To(BeTrue())
			Expect(v1.AlarmAcknowledged.Advances(v1.AlarmActive)).To(BeFalse())
			Expect(v1.AlarmResolved.Advances(v1.AlarmAcknowledged)).To(BeFalse())
			Expect(v1.AlarmActive.Advances(v1.AlarmActive)).To(BeFalse())
		})
	})

	Context("Sources", func() {
		It("should build conventional kind:id sources", func() {
			Expect(v1.SatelliteSource("SAT-1")).To(Equal("satellite:SAT-1"))
			Expect(v1.MissionSource("msn-42")).To(Equal("mission:msn-42"))
			Expect(v1.GroundStationSource("gs-1")).To(Equal("ground_station:gs-1"))
		})
		It("should extract the kind half", func() {
			Expect(v1.SourceKind("satellite:SAT-1")).To(Equal("satellite"))
			Expect(v1.SourceKind("system:tle_watcher")).To(Equal("system"))
			Expect(v1.SourceKind("standalone")).To(Equal("standalone"))
		})
	})
})
