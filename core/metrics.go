package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "member_security"

// Outcome labels.
const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeError     = "error"
	outcomeInvalid   = "invalid"
	outcomeDuplicate = "duplicate"
	outcomeLimited   = "rate_limited"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome.",
	}, []string{"outcome"})

	authorizationRedirects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "authorization_redirects_total",
		Help:      "Anonymous requests for protected paths redirected to the login page.",
	})
)
