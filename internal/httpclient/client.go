package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"browsermcp/internal/logging"
)

// New builds an HTTP client with a hard overall timeout. Download paths must
// never hang on a stalled remote, so a zero timeout is replaced with a finite
// default.
func New(timeout time.Duration, logger *logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: WrapTransportWithLogging(http.DefaultTransport, logger),
	}
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger *logging.Logger
}

// WrapTransportWithLogging wraps a transport with request/response debug logging.
func WrapTransportWithLogging(base http.RoundTripper, logger *logging.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingRoundTripper{base: base, logger: logging.OrNop(logger)}
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Debug("http request failed",
			"method", req.Method, "url", req.URL.String(), "error", err)
		return nil, err
	}
	t.logger.Debug("http request completed",
		"method", req.Method, "url", req.URL.String(),
		"status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}
