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

var _ = Describe("Conjunction", func() {
	Context("SeverityForMissDistance", func() {
		DescribeTable("should classify on the kilometer boundaries",
			func(missKM float64, expected v1.ConjunctionSeverity) {
				Expect(v1.SeverityForMissDistance(missKM)).To(Equal(expected))
			},
			Entry("just inside critical", 0.999, v1.ConjunctionCritical),
			Entry("exactly one is high", 1.0, v1.ConjunctionHigh),
			Entry("just inside high", 4.999, v1.ConjunctionHigh),
			Entry("exactly five is medium", 5.0, v1.ConjunctionMedium),
			Entry("just inside medium", 9.999, v1.ConjunctionMedium),
			Entry("exactly ten is low", 10.0, v1.ConjunctionLow),
			Entry("far away is low", 250.0, v1.ConjunctionLow),
		)
	})

	Context("Live", func() {
		It("should consider only resolved and expired conjunctions dead", func() {
			for _, status := range []v1.ConjunctionStatus{v1.ConjunctionPredicted, v1.ConjunctionActive, v1.ConjunctionMonitoring} {
				Expect((&v1.Conjunction{Status: status}).Live()).To(BeTrue())
			}
			Expect((&v1.Conjunction{Status: v1.ConjunctionResolved}).Live()).To(BeFalse())
			Expect((&v1.Conjunction{Status: v1.ConjunctionExpired}).Live()).To(BeFalse())
		})
	})
})
