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

package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pollsTotal tracks poll cycles by piece and outcome
	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pieceflow_poller_polls_total",
			Help: "Total poll cycles by piece, trigger and status",
		},
		[]string{"piece", "trigger", "status"},
	)

	// eventsTotal tracks new items emitted after deduplication
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pieceflow_poller_events_total",
			Help: "Total new events emitted by piece and trigger",
		},
		[]string{"piece", "trigger"},
	)

	// errorsTotal tracks failed poll cycles
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pieceflow_poller_errors_total",
			Help: "Total poll cycle errors by piece and trigger",
		},
		[]string{"piece", "trigger"},
	)

	// pollDuration tracks poll cycle latency
	pollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pieceflow_poller_duration_seconds",
			Help:    "Poll cycle duration in seconds by piece",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"piece"},
	)

	// activeTriggers tracks currently scheduled triggers
	activeTriggers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pieceflow_poller_active_triggers",
			Help: "Number of currently enabled poll triggers",
		},
	)
)

// recordPoll records one completed poll cycle.
func recordPoll(pieceName, triggerName string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
		errorsTotal.WithLabelValues(pieceName, triggerName).Inc()
	}
	pollsTotal.WithLabelValues(pieceName, triggerName, status).Inc()
	pollDuration.WithLabelValues(pieceName).Observe(seconds)
}

// recordEvents records the new items emitted by one cycle.
func recordEvents(pieceName, triggerName string, count int) {
	if count > 0 {
		eventsTotal.WithLabelValues(pieceName, triggerName).Add(float64(count))
	}
}
