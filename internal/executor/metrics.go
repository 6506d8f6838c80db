// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conduit_execution_duration_seconds",
			Help:    "Duration of connector handler executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector", "operation", "kind", "status"},
	)

	executionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_execution_retries_total",
			Help: "Total handler retries after failed attempts",
		},
		[]string{"connector", "operation", "kind"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_rate_limit_rejections_total",
			Help: "Total executions rejected by rate-limit admission",
		},
		[]string{"connector"},
	)
)

// recordExecution records metrics for one completed execution.
func recordExecution(connectorID, operation, kind string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	executionDuration.WithLabelValues(connectorID, operation, kind, status).Observe(seconds)
}
