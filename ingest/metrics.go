// Copyright 2025 Blink Labs Software
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

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ingestMetrics struct {
	eventsTotal       *prometheus.CounterVec
	droppedTotal      *prometheus.CounterVec
	duplicateCaptures prometheus.Counter
}

func (i *Ingestor) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	i.metrics = &ingestMetrics{
		eventsTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doorman_ingest_events_total",
				Help: "total ingested events by log type",
			},
			[]string{"log_type"},
		),
		droppedTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doorman_ingest_dropped_total",
				Help: "total dropped messages by reason",
			},
			[]string{"reason"},
		),
		duplicateCaptures: promautoFactory.NewCounter(
			prometheus.CounterOpts{
				Name: "doorman_ingest_duplicate_captures_total",
				Help: "total capture reports ignored as re-deliveries",
			},
		),
	}
}
