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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/stellarops/pkg/metrics"
)

const subSystem = "conjunction"

var (
	detectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "detected_total",
			Help:      "Number of new conjunctions detected.",
		},
		[]string{metrics.SeverityLabel},
	)
	expiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "expired_total",
			Help:      "Number of conjunctions expired past their time of closest approach.",
		},
	)
	skippedCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "skipped_cycles_total",
			Help:      "Number of detection ticks skipped because the previous cycle was still running.",
		},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "cycle_duration_seconds",
			Help:      "Detection cycle duration.",
			Buckets:   metrics.DurationBuckets(),
		},
	)
)

func init() {
	metrics.Registry.MustRegister(detectedTotal, expiredTotal, skippedCycles, cycleDuration)
}
