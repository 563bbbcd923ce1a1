package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracket_orders_submitted_total",
			Help: "Bracket submissions, by entry side and outcome.",
		},
		[]string{"side", "result"},
	)

	LegFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracket_leg_failures_total",
			Help: "Exchange call failures, by bracket leg.",
		},
		[]string{"leg"},
	)

	LogSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bracket_log_subscribers",
			Help: "Currently attached log stream subscribers.",
		},
	)

	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bracket_ws_clients",
			Help: "Currently connected websocket log clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, LegFailures, LogSubscribers, WSClients)
}
