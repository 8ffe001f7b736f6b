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

package events

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/stellarops/pkg/metrics"
)

const busSubsystem = "event_bus"

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: busSubsystem,
			Name:      "published_total",
			Help:      "Number of events published, partitioned by topic.",
		},
		[]string{metrics.TopicLabel})
	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: busSubsystem,
			Name:      "dropped_total",
			Help:      "Number of events dropped oldest-first because a subscriber fell behind, partitioned by topic.",
		},
		[]string{metrics.TopicLabel})
)

func init() {
	metrics.Registry.MustRegister(publishedTotal, droppedTotal)
}
