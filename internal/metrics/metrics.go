// Package metrics exposes the pipeline's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagging_events_accepted_total",
		Help: "Events accepted at intake and enqueued for delivery.",
	})

	EventsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagging_events_bot_filtered_total",
		Help: "Events silently dropped by the bot-detection gate.",
	})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagging_events_rejected_total",
		Help: "Events rejected at intake, by reason.",
	}, []string{"reason"})

	ConsentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagging_consent_decisions_total",
		Help: "Consent decisions applied, by dimension state.",
	}, []string{"ad_user_data", "ad_personalization"})

	QueueTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagging_queue_transitions_total",
		Help: "Queue entry state transitions.",
	}, []string{"to"})

	DeliveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagging_delivery_outcomes_total",
		Help: "Upstream delivery attempt outcomes.",
	}, []string{"outcome"})
)
