// Package metrics exposes Prometheus instruments for the raid engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts webhook events by outcome
	// (added, duplicate, stale, egg, ignored, malformed).
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teleraid_events_total",
		Help: "Webhook events consumed by the scheduler, by outcome",
	}, []string{"outcome"})

	// NotificationsTotal counts notification units by result and failed stage.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teleraid_notifications_total",
		Help: "Notification units attempted, by result",
	}, []string{"result"})

	VotesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teleraid_votes_total",
		Help: "Vote callbacks folded into polls",
	})

	EditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teleraid_edits_total",
		Help: "Poll message edits, by result",
	}, []string{"result"})

	DeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teleraid_deletes_total",
		Help: "Message deletions requested on raid expiry, by result",
	}, []string{"result"})

	RaidsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teleraid_raids_tracked",
		Help: "Raids currently held in memory",
	})

	MessageRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teleraid_message_records",
		Help: "Poll message records currently held in memory",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teleraid_event_queue_depth",
		Help: "Webhook events waiting for the scheduler",
	})

	ReconcileDelay = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teleraid_reconcile_delay_seconds",
		Help: "Current delay between update feed polls",
	})
)

// SetReconcileDelay records the delay before the next poll.
func SetReconcileDelay(d time.Duration) { ReconcileDelay.Set(d.Seconds()) }
