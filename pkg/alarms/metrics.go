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

package alarms

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/stellarops/pkg/metrics"
)

const alarmSubsystem = "alarms"

var raisedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: alarmSubsystem,
		Name:      "raised_total",
		Help:      "Number of alarms raised, partitioned by severity and type.",
	},
	[]string{metrics.SeverityLabel, metrics.TypeLabel})

func init() {
	metrics.Registry.MustRegister(raisedTotal)
}
