// Copyright 2026 The EXEX Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exex_requests_total",
			Help: "Total number of API requests by operation and verdict.",
		},
		[]string{"op", "verdict"},
	)

	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exex_os_failures_total",
			Help: "Allowed requests whose OS operation failed, by operation.",
		},
		[]string{"op"},
	)

	uptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exex_uptime_seconds",
			Help: "Seconds since the daemon started.",
		},
	)

	metricsRegistry = prometheus.NewRegistry()
)

func init() {
	metricsRegistry.MustRegister(
		requestsTotal,
		failuresTotal,
		uptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// RecordRequest records one dispatched request for Prometheus metrics.
func RecordRequest(op string, allowed, ok bool) {
	verdict := "deny"
	if allowed {
		verdict = "allow"
	}
	requestsTotal.With(prometheus.Labels{"op": op, "verdict": verdict}).Inc()
	if allowed && !ok {
		failuresTotal.With(prometheus.Labels{"op": op}).Inc()
	}
}

// SetUptime sets the uptime gauge in seconds.
func SetUptime(d time.Duration) {
	uptimeSeconds.Set(d.Seconds())
}

// MetricsHandler returns an HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
}
