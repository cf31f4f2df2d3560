package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SMSReceivedTotal counts webhook deliveries accepted
	SMSReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sms_received_total",
			Help: "Total number of inbound SMS accepted by the webhook",
		},
	)

	// SMSParseTotal counts parser strategy outcomes
	SMSParseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_parse_total",
			Help: "SMS parse attempts partitioned by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// SMSManualReviewTotal counts SMS routed to manual review
	SMSManualReviewTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_manual_review_total",
			Help: "SMS routed to manual review partitioned by reason",
		},
		[]string{"reason"},
	)

	// SMSSettlementTotal counts settlements by entity kind and mode (auto or manual)
	SMSSettlementTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_settlement_total",
			Help: "Settlements applied partitioned by entity kind and mode",
		},
		[]string{"kind", "mode"},
	)
)
