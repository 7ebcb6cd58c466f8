/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package obs implements the Prometheus-backed observability
// capability the scheduler and pool packages are written to accept
// as an injected, optional interface: per-route request counters and
// latency, active-connection and close-reason counters, abandoned
// task counts, and live pool queue-depth gauges.
package obs

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AlexaFrom/routine-http/pool"
)

// Metrics satisfies scheduler.Metrics and pool.Metrics. The zero value
// is not usable; construct with NewMetrics.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	connectionsActive   prometheus.Gauge
	connectionsClosed   *prometheus.CounterVec
	tasksAbandonedTotal prometheus.Counter
}

// NewMetrics registers every collector against reg and returns the
// capability. Passing the same reg to two NewMetrics calls fails with
// a duplicate-registration panic from promauto, by design: one
// Metrics per process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routine_http",
				Name:      "requests_total",
				Help:      "Total requests served, by route and status code.",
			},
			[]string{"route", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "routine_http",
				Name:      "request_duration_seconds",
				Help:      "Request handling duration in seconds, by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		connectionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "routine_http",
				Name:      "connections_active",
				Help:      "Number of currently accepted connections.",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routine_http",
				Name:      "connections_closed_total",
				Help:      "Total connections closed, by reason.",
			},
			[]string{"reason"},
		),
		tasksAbandonedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "routine_http",
				Name:      "pool_tasks_abandoned_total",
				Help:      "Total queued tasks discarded when a worker pool was stopped with no survivors.",
			},
		),
	}
}

// ConnectionAccepted implements scheduler.Metrics.
func (m *Metrics) ConnectionAccepted() {
	m.connectionsActive.Inc()
}

// ConnectionClosed implements scheduler.Metrics.
func (m *Metrics) ConnectionClosed(reason string) {
	m.connectionsActive.Dec()
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

// RequestServed implements scheduler.Metrics.
func (m *Metrics) RequestServed(path string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// TaskAbandoned implements pool.Metrics.
func (m *Metrics) TaskAbandoned(count int) {
	m.tasksAbandonedTotal.Add(float64(count))
}

// RegisterPoolGauges registers a pair of live gauges (queued task
// count, live worker count) for p under name, read at scrape time via
// GaugeFunc rather than polled on a timer.
func RegisterPoolGauges(reg prometheus.Registerer, name string, p *pool.Pool) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "routine_http",
			Name:      name + "_queue_depth",
			Help:      "Queued (not yet started) tasks across every worker in the " + name + " pool.",
		},
		func() float64 { return float64(p.TasksCount()) },
	)
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "routine_http",
			Name:      name + "_workers",
			Help:      "Live worker goroutines in the " + name + " pool.",
		},
		func() float64 { return float64(p.ThreadsCount()) },
	)
}
