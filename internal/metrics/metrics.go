package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvitationsRendered counts rendered invitations by status
	InvitationsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitations_rendered_total",
			Help: "The total number of rendered invitations",
		},
		[]string{"status"},
	)

	// CheckIns counts validation outcomes at the door
	CheckIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitations_checkins_total",
			Help: "The total number of validated QR codes by outcome",
		},
		[]string{"outcome"},
	)

	// FramesScanned counts frames read by the continuous scanner
	FramesScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invitations_frames_scanned_total",
			Help: "The total number of frames read from the scan source",
		},
	)

	// InvitationsSent counts delivery attempts by status
	InvitationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitations_sent_total",
			Help: "The total number of invitation delivery attempts",
		},
		[]string{"status"},
	)

	// HTTPRequests counts door API requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitations_http_requests_total",
			Help: "The total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invitations_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
