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

var _ = Describe("Mission", func() {
	Context("Status transitions", func() {
		It("should follow the lifecycle graph", func() {
			Expect(v1.MissionPending.CanTransition(v1.MissionScheduled)).To(BeTrue())
			Expect(v1.MissionPending.CanTransition(v1.MissionCanceled)).To(BeTrue())
			Expect(v1.MissionPending.CanTransition(v1.MissionRunning)).To(BeFalse())
			Expect(v1.MissionScheduled.CanTransition(v1.MissionRunning)).To(BeTrue())
			Expect(v1.MissionRunning.CanTransition(v1.MissionCompleted)).To(BeTrue())
			Expect(v1.MissionRunning.CanTransition(v1.MissionFailed)).To(BeTrue())
			Expect(v1.MissionCompleted.CanTransition(v1.MissionScheduled)).To(BeFalse())
		})
		It("should allow retrying a failed mission", func() {
			Expect(v1.MissionFailed.CanTransition(v1.MissionScheduled)).To(BeTrue())
			Expect(v1.MissionFailed.CanTransition(v1.MissionRunning)).To(BeFalse())
		})
		It("should never cancel a running mission", func() {
			Expect(v1.MissionRunning.CanTransition(v1.MissionCanceled)).To(BeFalse())
			Expect(v1.MissionRunning.Cancelable()).To(BeFalse())
			Expect(v1.MissionPending.Cancelable()).To(BeTrue())
			Expect(v1.MissionScheduled.Cancelable()).To(BeTrue())
		})
		It("should treat only completed and canceled as terminal", func() {
			Expect(v1.MissionCompleted.Terminal()).To(BeTrue())
			Expect(v1.MissionCanceled.Terminal()).To(BeTrue())
			// Failed missions may still retry; the executor decides.
			Expect(v1.MissionFailed.Terminal()).To(BeFalse())
			Expect(v1.MissionRunning.Terminal()).To(BeFalse())
		})
	})

	Context("Priority", func() {
		It("should rank critical ahead of everything", func() {
			Expect(v1.PriorityCritical.Rank()).To(BeNumerically("<", v1.PriorityHigh.Rank()))
			Expect(v1.PriorityHigh.Rank()).To(BeNumerically("<", v1.PriorityNormal.Rank()))
			Expect(v1.PriorityNormal.Rank()).To(BeNumerically("<", v1.PriorityLow.Rank()))
		})
		It("should rank unknown priorities last", func() {
			Expect(v1.MissionPriority("").Rank()).To(Equal(v1.PriorityLow.Rank()))
		})
	})
})
