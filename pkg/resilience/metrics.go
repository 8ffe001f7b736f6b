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

package resilience

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/stellarops/pkg/metrics"
)

const (
	breakerSubsystem = "breaker"

	resultSuccess  = "success"
	resultFailure  = "failure"
	resultRejected = "rejected"

	fallbackSourceCache = "cache"
	fallbackSourceFunc  = "fallback"
)

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: breakerSubsystem,
			Name:      "calls_total",
			Help:      "Calls through each breaker, partitioned by result.",
		},
		[]string{metrics.BreakerLabel, metrics.ResultLabel})
	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: breakerSubsystem,
			Name:      "state",
			Help:      "Current breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{metrics.BreakerLabel})
	fallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: breakerSubsystem,
			Name:      "fallback_total",
			Help:      "Degraded reads served from cache or fallback, partitioned by operation and source.",
		},
		[]string{"operation", "source"})
)

func init() {
	metrics.Registry.MustRegister(callsTotal, stateGauge, fallbackTotal)
}
