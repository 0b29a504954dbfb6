package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoggingTransport wraps an http.RoundTripper to emit structured
// request/response diagnostics at debug level.
type LoggingTransport struct {
	base   http.RoundTripper
	logger *zap.Logger
}

// NewLoggingTransport wraps base, logging every round trip under logger.
func NewLoggingTransport(base http.RoundTripper, logger *zap.Logger) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &LoggingTransport{base: base, logger: logger.Named("transport.http.wire")}
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("request", zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.logger.Debug("request failed", zap.Error(err), zap.Duration("duration", duration))
		return resp, err
	}

	t.logger.Debug("response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration))
	return resp, nil
}
