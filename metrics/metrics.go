// This file is part of kvoverlay, an unstructured peer-to-peer
// key/value lookup overlay written in Go.
//
// kvoverlay is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// kvoverlay is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package metrics exposes the node's runtime counters over Prometheus, on
// an isolated registry so they never collide with the default one (handy
// in tests, where several nodes run in the same process).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector a node reports.
type Metrics struct {
	Registry *prometheus.Registry
	node     string

	SearchesInitiatedTotal *prometheus.CounterVec
	SearchesForwardedTotal *prometheus.CounterVec
	SearchesDroppedTotal   *prometheus.CounterVec
	SearchHitsTotal        *prometheus.CounterVec
	SearchHopCount         *prometheus.HistogramVec

	NeighborCount *prometheus.GaugeVec
	ConnPoolSize  *prometheus.GaugeVec

	FramesDecodeErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a
// fresh registry, labeled with the node's own overlay address so metrics
// from several nodes can be distinguished if ever scraped through a shared
// pushgateway.
func New(nodeAddr string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		node:     nodeAddr,

		SearchesInitiatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvoverlay_searches_initiated_total",
				Help: "Total number of searches originated by this node, by mode.",
			},
			[]string{"node", "mode"},
		),
		SearchesForwardedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvoverlay_searches_forwarded_total",
				Help: "Total number of SEARCH frames relayed by this node, by mode.",
			},
			[]string{"node", "mode"},
		),
		SearchesDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvoverlay_searches_dropped_total",
				Help: "Total number of SEARCH frames dropped, by mode and reason.",
			},
			[]string{"node", "mode", "reason"},
		),
		SearchHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvoverlay_search_hits_total",
				Help: "Total number of searches originated here that resolved (local hit or VAL received), by mode.",
			},
			[]string{"node", "mode"},
		),
		SearchHopCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kvoverlay_search_hop_count",
				Help:    "Hop count of resolved searches, by mode.",
				Buckets: prometheus.LinearBuckets(0, 1, 20),
			},
			[]string{"node", "mode"},
		),
		NeighborCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kvoverlay_neighbor_count",
				Help: "Current number of known neighbors.",
			},
			[]string{"node"},
		),
		ConnPoolSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kvoverlay_connection_pool_size",
				Help: "Current number of pooled outbound connections.",
			},
			[]string{"node"},
		),
		FramesDecodeErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvoverlay_frame_decode_errors_total",
				Help: "Total number of malformed frames dropped on receipt.",
			},
			[]string{"node"},
		),
	}

	reg.MustRegister(
		m.SearchesInitiatedTotal,
		m.SearchesForwardedTotal,
		m.SearchesDroppedTotal,
		m.SearchHitsTotal,
		m.SearchHopCount,
		m.NeighborCount,
		m.ConnPoolSize,
		m.FramesDecodeErrorsTotal,
	)

	return m
}

// Handler returns an http.Handler serving this instance's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// IncInitiated records one more search this node originated.
func (m *Metrics) IncInitiated(mode string) {
	m.SearchesInitiatedTotal.WithLabelValues(m.node, mode).Inc()
}

// IncForwarded records one more SEARCH frame relayed onward.
func (m *Metrics) IncForwarded(mode string) {
	m.SearchesForwardedTotal.WithLabelValues(m.node, mode).Inc()
}

// IncDropped records one SEARCH frame dropped for the given reason
// ("duplicate" or "ttl_exhausted").
func (m *Metrics) IncDropped(mode, reason string) {
	m.SearchesDroppedTotal.WithLabelValues(m.node, mode, reason).Inc()
}

// ObserveHit records a resolved search's hop count.
func (m *Metrics) ObserveHit(mode string, hopCount int) {
	m.SearchHitsTotal.WithLabelValues(m.node, mode).Inc()
	m.SearchHopCount.WithLabelValues(m.node, mode).Observe(float64(hopCount))
}

// SetNeighborCount updates the current neighbor-table size gauge.
func (m *Metrics) SetNeighborCount(n int) {
	m.NeighborCount.WithLabelValues(m.node).Set(float64(n))
}

// SetConnPoolSize updates the current pooled-connection count gauge.
func (m *Metrics) SetConnPoolSize(n int) {
	m.ConnPoolSize.WithLabelValues(m.node).Set(float64(n))
}

// IncFrameDecodeError records a malformed frame dropped on receipt.
func (m *Metrics) IncFrameDecodeError() {
	m.FramesDecodeErrorsTotal.WithLabelValues(m.node).Inc()
}
