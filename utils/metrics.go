package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters for the capture and sequence pipelines, exposed on
// /metrics.
var (
	TouchpointsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "databender_touchpoints_recorded_total",
		Help: "Touchpoints recorded, by event type.",
	}, []string{"type"})

	LeadsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "databender_leads_created_total",
		Help: "Leads created, by form type.",
	}, []string{"form_type"})

	SequenceEmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "databender_sequence_emails_sent_total",
		Help: "Sequence emails sent, by sequence type.",
	}, []string{"sequence_type"})

	SequenceSendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "databender_sequence_send_failures_total",
		Help: "Sequence email send failures, by sequence type.",
	}, []string{"sequence_type"})

	TrackingOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "databender_tracking_opens_total",
		Help: "Open-pixel hits with a valid token.",
	})

	TrackingClicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "databender_tracking_clicks_total",
		Help: "Click-redirect hits with a valid token.",
	})

	TrackingDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "databender_tracking_decode_failures_total",
		Help: "Tracking tokens that failed to decode.",
	})
)
