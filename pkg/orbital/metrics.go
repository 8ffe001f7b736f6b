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

package orbital

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/stellarops/pkg/metrics"
)

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "orbital",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls to the orbital service, partitioned by endpoint.",
		Buckets:   metrics.DurationBuckets(),
	},
	[]string{"endpoint"})

func init() {
	metrics.Registry.MustRegister(requestDuration)
}
