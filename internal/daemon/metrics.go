// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package daemon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics is ambient observability for the daemon: connections accepted,
// orders served by shape, cursors currently open, and NOCASSANDRA
// occurrences. The daemon updates only connectionsTotal and
// noCassandraTotal; ordersByShape and cursorsOpen are registered and
// exported but never change from zero.
type metrics struct {
	registry          *prometheus.Registry
	connectionsTotal  prometheus.Counter
	ordersByShape     *prometheus.CounterVec
	cursorsOpen       prometheus.Gauge
	noCassandraTotal  prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()

	m := &metrics{
		registry: reg,
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapdbproxy",
			Name:      "connections_accepted_total",
			Help:      "Total client connections accepted by the proxy.",
		}),
		ordersByShape: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapdbproxy",
			Name:      "orders_total",
			Help:      "Orders served, partitioned by wire shape.",
		}, []string{"shape"}),
		cursorsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snapdbproxy",
			Name:      "cursors_open",
			Help:      "Cursors currently registered across all connections.",
		}),
		noCassandraTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapdbproxy",
			Name:      "nocassandra_total",
			Help:      "Number of NOCASSANDRA transitions emitted on the bus.",
		}),
	}

	reg.MustRegister(m.connectionsTotal, m.ordersByShape, m.cursorsOpen, m.noCassandraTotal)
	return m
}

// handler exposes the registry on /metrics for scraping.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
