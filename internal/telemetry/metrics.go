// Package telemetry holds the prometheus collectors of the lifecycle service.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applications_submitted_total",
		Help: "Application submissions by result",
	}, []string{"result"})
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_transitions_total",
		Help: "Successful lifecycle transitions",
	}, []string{"from", "to"})
	TransitionRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_transition_rejects_total",
		Help: "Transitions refused by validation",
	}, []string{"reason"})
	InterviewActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_actions_total",
		Help: "Interview scheduler operations",
	}, []string{"action"})
	NotificationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notifications stored by event kind",
	}, []string{"kind"})
	NotificationDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Channel delivery attempts by result",
	}, []string{"channel", "result"})
	OutboxRelayed   = prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_events_relayed_total", Help: "Events moved from the outbox to the queue"})
	EventsFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "notify_events_failed_total", Help: "Events whose dispatch failed and will be retried"})
	ExpiredPurged   = prometheus.NewCounter(prometheus.CounterOpts{Name: "notifications_expired_purged_total", Help: "Expired notifications deleted by the sweep"})
	QueueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "notify_queue_depth", Help: "Events waiting for dispatch"})
	InFlightGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "notify_inflight", Help: "Events currently leased by workers"})
)

// Handler exposes /metrics with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			Submissions,
			Transitions,
			TransitionRejects,
			InterviewActions,
			NotificationsCreated,
			NotificationDeliveries,
			OutboxRelayed,
			EventsFailed,
			ExpiredPurged,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
