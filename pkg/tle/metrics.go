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

package tle

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/stellarops/pkg/metrics"
)

var staleGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "tle",
		Name:      "stale_element_sets",
		Help:      "Number of element sets older than the freshness window.",
	},
)

func init() {
	metrics.Registry.MustRegister(staleGauge)
}
