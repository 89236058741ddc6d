package proxy

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/SVOIcom/everscale-connect-backend/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// accessLog records one line and the request metrics per proxied call. An
// incoming X-Request-ID is kept, otherwise a new one is assigned.
func accessLog(logger *slog.Logger, route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		metrics.ProxyRequestsTotal.WithLabelValues(route, sw.envelopeStatus()).Inc()
		metrics.ProxyRequestLatency.WithLabelValues(route).Observe(elapsed.Seconds())

		logger.Debug("proxy request",
			"request_id", requestID,
			"route", route,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"response_status", sw.statusCode,
			"envelope_status", sw.envelopeStatus(),
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	// failed is set by handlers that answered with an error envelope.
	failed bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.written = true
	}
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) envelopeStatus() string {
	switch {
	case sw.statusCode >= 400:
		return strconv.Itoa(sw.statusCode)
	case sw.failed:
		return "error"
	default:
		return "ok"
	}
}

// markFailed flags w, when it is a statusWriter, as carrying an error envelope.
func markFailed(w http.ResponseWriter) {
	if sw, ok := w.(*statusWriter); ok {
		sw.failed = true
	}
}
