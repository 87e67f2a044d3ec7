package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "passengerd",
		Name:      "connections_accepted_total",
		Help:      "Connections accepted from the front end.",
	})

	metricRequestsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "passengerd",
		Name:      "requests_dispatched_total",
		Help:      "Requests successfully decoded and handed to the dispatcher.",
	})

	metricConnectionsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "passengerd",
		Name:      "connections_dropped_total",
		Help:      "Connections dropped without a dispatched request, by reason.",
	}, []string{"reason"})

	metricLoopExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "passengerd",
		Name:      "loop_exits_total",
		Help:      "Event loop exits, by cause.",
	}, []string{"cause"})
)

// Exit causes for metricLoopExits.
const (
	exitCauseOwnerDeath = "owner_death"      // front end closed the liveness pipe
	exitCauseSoft       = "soft_termination" // SIGUSR1, in-flight connection finished
	exitCauseHard       = "hard_termination" // SIGTERM/SIGINT or external shutdown
)

// Drop reasons for metricConnectionsDropped.
const (
	dropReasonEmpty          = "empty"            // peer closed before sending a frame
	dropReasonHeaderTooLarge = "header_too_large" // header block over the size limit
	dropReasonDecodeError    = "decode_error"     // I/O or protocol failure during decode
	dropReasonDispatchError  = "dispatch_error"   // dispatcher reported an I/O failure
)
