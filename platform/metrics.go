package platform

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rolodex_platform_requests_total",
	Help: "Requests made to the platform API, by endpoint and HTTP status",
}, []string{"endpoint", "status"})

var upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "rolodex_platform_request_duration",
	Help:    "Time to complete a platform API request",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 20),
}, []string{"endpoint", "status"})
