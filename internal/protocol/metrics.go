package protocol

import "github.com/VictoriaMetrics/metrics"

// Process-wide protocol counters, exposed through metrics.WritePrometheus.
var (
	requestsSent     = metrics.NewCounter(`qconn_requests_sent_total`)
	requestsReceived = metrics.NewCounter(`qconn_requests_received_total`)
	repliesSent      = metrics.NewCounter(`qconn_replies_sent_total`)
	encodingFailures = metrics.NewCounter(`qconn_encoding_failures_total`)
	framesDropped    = metrics.NewCounter(`qconn_frames_dropped_total`)
	messagesIgnored  = metrics.NewCounter(`qconn_messages_ignored_total`)
)
