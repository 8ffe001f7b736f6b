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

package coa

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/stellarops/pkg/metrics"
)

const subSystem = "coa"

var (
	proposedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "proposed_total",
			Help:      "Number of courses of action proposed.",
		},
		[]string{metrics.TypeLabel},
	)
	executedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "executed_total",
			Help:      "Number of courses of action reaching a terminal status.",
		},
		[]string{metrics.ResultLabel},
	)
)

func init() {
	metrics.Registry.MustRegister(proposedTotal, executedTotal)
}
