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

var _ = Describe("COA", func() {
	Context("Status transitions", func() {
		It("should follow the proposal lifecycle", func() {
			Expect(v1.COAProposed.CanTransition(v1.COASelected)).To(BeTrue())
			Expect(v1.COAProposed.CanTransition(v1.COARejected)).To(BeTrue())
			Expect(v1.COAProposed.CanTransition(v1.COAExecuting)).To(BeFalse())
			Expect(v1.COASelected.CanTransition(v1.COAExecuting)).To(BeTrue())
			Expect(v1.COAExecuting.CanTransition(v1.COACompleted)).To(BeTrue())
			Expect(v1.COAExecuting.CanTransition(v1.COAFailed)).To(BeTrue())
		})
		It("should allow rolling an executing course of action back to selected", func() {
			Expect(v1.COAExecuting.CanTransition(v1.COASelected)).To(BeTrue())
			Expect(v1.COACompleted.CanTransition(v1.COASelected)).To(BeFalse())
		})
		It("should treat terminal statuses as dead ends", func() {
			for _, status := range []v1.COAStatus{v1.COACompleted, v1.COAFailed, v1.COARejected} {
				for _, next := range []v1.COAStatus{v1.COAProposed, v1.COASelected, v1.COAExecuting, v1.COACompleted, v1.COAFailed, v1.COARejected} {
					Expect(status.CanTransition(next)).To(BeFalse())
				}
			}
		})
	})

	Context("Committed", func() {
		It("should mark the statuses that occupy the conjunction's slot", func() {
			Expect(v1.COASelected.Committed()).To(BeTrue())
			Expect(v1.COAExecuting.Committed()).To(BeTrue())
			Expect(v1.COACompleted.Committed()).To(BeTrue())
			Expect(v1.COAProposed.Committed()).To(BeFalse())
			Expect(v1.COARejected.Committed()).To(BeFalse())
			Expect(v1.COAFailed.Committed()).To(BeFalse())
		})
	})
})
