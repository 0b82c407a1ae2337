package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditline_transitions_total",
		Help: "Workflow action attempts by action and outcome.",
	}, []string{"action", "outcome"})

	intakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditline_intakes_total",
		Help: "Dossier intake attempts by outcome.",
	}, []string{"outcome"})
)

func transitionOutcomeLabel(err error) string {
	if err == nil {
		return "applied"
	}
	switch handleError(err).GetStatus() {
	case 403:
		return "forbidden"
	case 409:
		return "conflict"
	case 422:
		return "illegal_state"
	case 400:
		return "bad_request"
	case 404:
		return "not_found"
	default:
		return "error"
	}
}
