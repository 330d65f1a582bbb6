package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repodigest_events_total",
			Help: "Inbound webhook events by source and outcome",
		},
		[]string{"source", "outcome"}, // github|gitlab , handled|unsupported|invalid|queued
	)

	OutboundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repodigest_outbound_total",
			Help: "Outbound chat calls by operation and result",
		},
		[]string{"op", "result"}, // post|update , ok|failed
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repodigest_commands_total",
			Help: "Chat commands by verb and result",
		},
		[]string{"verb", "result"},
	)

	DigestsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repodigest_digests_open",
			Help: "Digest messages currently open for edits",
		},
	)
)

// MustRegister registers every collector once per registerer. Serve and the
// ingest worker may both run in one process.
func MustRegister(r prometheus.Registerer) {
	for _, c := range []prometheus.Collector{EventsTotal, OutboundTotal, CommandsTotal, DigestsOpen} {
		if err := r.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
}
