// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinelops_webhook_events_total",
		Help: "Stripe webhook deliveries, labelled by outcome (saved, deduped, invalid, error).",
	}, []string{"outcome"})

	WebhookEventTypes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinelops_webhook_event_types_total",
		Help: "Saved Stripe events by type; untracked types are counted as other.",
	}, []string{"event_type"})

	RuleEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinelops_rule_evaluations_total",
		Help: "Rule evaluations, labelled by rule code and result.",
	}, []string{"rule_code", "result"})

	AnomaliesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinelops_anomalies_created_total",
		Help: "Anomalies created by the rule evaluator, labelled by rule code.",
	}, []string{"rule_code"})

	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinelops_notifications_failed_total",
		Help: "Failed outbound notifications, labelled by kind (anomaly, daily_summary).",
	}, []string{"kind"})

	DailySummaryRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinelops_daily_summary_runs_total",
		Help: "Daily summary runs, labelled by outcome (sent, skipped, failed).",
	}, []string{"outcome"})

	InsightRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinelops_insight_requests_total",
		Help: "AI insight generation attempts, labelled by result code.",
	}, []string{"result"})

	AnomalyTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinelops_anomaly_transitions_total",
		Help: "Successful anomaly status transitions, labelled by target status.",
	}, []string{"to"})
)
