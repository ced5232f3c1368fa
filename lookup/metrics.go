package lookup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var userResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rolodex_lookup_resolve_user",
	Help: "User profile resolutions, by source and outcome",
}, []string{"source", "status"})

var userResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "rolodex_lookup_resolve_user_duration",
	Help:    "Time to resolve a user profile",
	Buckets: prometheus.ExponentialBucketsRange(0.0001, 30, 20),
}, []string{"source", "status"})

var usernameLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rolodex_lookup_resolve_username",
	Help: "Username to user ID resolutions, by outcome",
}, []string{"status"})

var statsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rolodex_lookup_stats",
	Help: "Social counter requests, by outcome",
}, []string{"status"})

var bestEffortFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rolodex_lookup_best_effort_failures",
	Help: "Tolerated upstream failures replaced by a default value",
}, []string{"call"})
