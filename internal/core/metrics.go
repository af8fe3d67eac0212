package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	reloadFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secmaster_reload_files_total",
		Help: "Vendor files processed by reloads, by outcome",
	}, []string{"status"})

	reloadRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secmaster_reload_rows_total",
		Help: "Rows written by reloads, by store",
	}, []string{"store"})

	ruleIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secmaster_rule_issues_total",
		Help: "Rule engine issues raised during reloads, by severity",
	}, []string{"severity"})

	reloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "secmaster_reload_duration_seconds",
		Help:    "Wall time of full reloads",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	lookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secmaster_lookup_duration_seconds",
		Help:    "Duration of lookups, by operation",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"op"})
)

const (
	storeVersions = "versionstore"
	storeSnapshot = "snapshot"
)
