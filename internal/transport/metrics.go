package transport

import "github.com/VictoriaMetrics/metrics"

// Process-wide transport counters, exposed through metrics.WritePrometheus.
var (
	framesReceived = metrics.NewCounter(`qconn_frames_received_total`)
	framesSent     = metrics.NewCounter(`qconn_frames_sent_total`)
	bytesReceived  = metrics.NewCounter(`qconn_bytes_received_total`)
	bytesSent      = metrics.NewCounter(`qconn_bytes_sent_total`)
	backpressure   = metrics.NewCounter(`qconn_backpressure_total`)
)
