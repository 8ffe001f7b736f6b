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

package missions

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/stellarops/pkg/metrics"
)

const subSystem = "missions"

var (
	enqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "enqueued_total",
			Help:      "Number of missions accepted into the queue.",
		},
		[]string{metrics.PriorityLabel},
	)
	completedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "completed_total",
			Help:      "Number of missions reaching a terminal status.",
		},
		[]string{metrics.ResultLabel},
	)
	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "retries_total",
			Help:      "Number of mission retry reschedules.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "queue_depth",
			Help:      "Number of missions waiting in the scheduler queue.",
		},
	)
	missionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: subSystem,
			Name:      "duration_seconds",
			Help:      "Mission execution duration.",
			Buckets:   metrics.DurationBuckets(),
		},
		[]string{metrics.TypeLabel},
	)
)

func init() {
	metrics.Registry.MustRegister(enqueuedTotal, completedTotal, retriesTotal, queueDepth, missionDuration)
}
