package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nyota_payments_initiated_total",
		Help: "Total number of purchase attempts initiated",
	})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nyota_payments_completed_total",
		Help: "Total number of purchase attempts completed",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nyota_webhook_events_total",
		Help: "Total number of gateway webhook callbacks by outcome",
	}, []string{"outcome"})

	PaymentStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nyota_payment_streams_active",
		Help: "Number of live payment notification streams",
	})
)
