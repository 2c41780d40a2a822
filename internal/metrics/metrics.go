// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

// Package metrics provides Prometheus instrumentation for the topic
// engine: selection throughput and latency, reward distribution,
// duplicate-reward rejections, persistence flush health, and HTTP
// endpoint metrics. Metrics are exposed at /metrics in Prometheus text
// format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Selection Metrics
	SelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recomate_selections_total",
			Help: "Total number of topic selections",
		},
		[]string{"topic"},
	)

	SelectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recomate_select_duration_seconds",
			Help:    "Duration of a single topic selection pass in seconds",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		},
	)

	// Reward Metrics
	RewardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recomate_rewards_total",
			Help: "Total number of rewards applied",
		},
		[]string{"topic"},
	)

	RewardValue = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recomate_reward_value",
			Help:    "Distribution of applied reward values",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // rewards live in [0, 1]
		},
	)

	DuplicateRewardsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recomate_reward_duplicates_total",
			Help: "Total number of rejected duplicate or unknown reward events",
		},
	)

	// Model Gauges
	TopicCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recomate_topics",
			Help: "Current number of registered topics",
		},
	)

	TotalSelections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recomate_total_selections",
			Help: "Total rewards applied across all arms",
		},
	)

	// Persistence Metrics
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recomate_flush_duration_seconds",
			Help:    "Duration of write-behind state flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recomate_flush_failures_total",
			Help: "Total number of failed state flushes",
		},
	)

	FlushedArmsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recomate_flushed_arms_total",
			Help: "Total number of arm states durably written",
		},
	)

	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recomate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recomate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordSelection tracks one completed selection pass.
func RecordSelection(topic string, seconds float64) {
	SelectionsTotal.WithLabelValues(topic).Inc()
	SelectDuration.Observe(seconds)
}

// RecordReward tracks one applied reward.
func RecordReward(topic string, value float64) {
	RewardsTotal.WithLabelValues(topic).Inc()
	RewardValue.Observe(value)
}

// RecordDuplicateReward tracks a rejected reward event.
func RecordDuplicateReward() {
	DuplicateRewardsTotal.Inc()
}

// SetTopicCount updates the registered-topic gauge.
func SetTopicCount(n int) {
	TopicCount.Set(float64(n))
}

// SetTotalSelections updates the cumulative selection gauge.
func SetTotalSelections(n int64) {
	TotalSelections.Set(float64(n))
}

// RecordFlush tracks one write-behind flush attempt.
func RecordFlush(duration time.Duration, arms int, err error) {
	if err != nil {
		FlushFailuresTotal.Inc()
		return
	}
	FlushDuration.Observe(duration.Seconds())
	FlushedArmsTotal.Add(float64(arms))
}

// RecordHTTPRequest tracks one served HTTP request.
func RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
