// Package metrics holds the Prometheus instruments for the feed engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "karmafeed"

var (
	// Collaborator calls
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Total number of calls to the persistence/ranking service",
		},
		[]string{"operation", "status"},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Duration of calls to the persistence/ranking service",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Engine activity
	LikeTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "like_toggles_total",
			Help:      "Optimistic like toggles by target kind and outcome",
		},
		[]string{"target", "outcome"},
	)

	PageLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_loads_total",
			Help:      "Feed page loads by mode and status",
		},
		[]string{"mode", "status"},
	)

	LeaderboardRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_refreshes_total",
			Help:      "Leaderboard refreshes by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Post and comment submissions by kind and status",
		},
		[]string{"kind", "status"},
	)

	FeedPosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_posts",
			Help:      "Number of posts held in the feed",
		},
	)

	ApplicationInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "application_info",
			Help:      "Application information",
		},
		[]string{"service", "version"},
	)
)

// Init records static application info.
func Init(serviceName, version string) {
	ApplicationInfo.WithLabelValues(serviceName, version).Set(1)
}

// Status maps an error to the "status" label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
