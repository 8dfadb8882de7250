package airbrake

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Doer sends one HTTP request. *http.Client and *HTTPTransport satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// errServerFailure marks 5xx responses as failures for the breaker while the
// response itself is still handed back to the caller.
var errServerFailure = errors.New("server failure")

// HTTPTransport handles HTTP communication with Airbrake. It never retries:
// a failed request is reported once.
type HTTPTransport struct {
	config  *TransportConfig
	client  *http.Client
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPTransport creates a new HTTP transport
func NewHTTPTransport(cfg *Config, logger *zap.Logger) (*HTTPTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.verifySSL(), //nolint:gosec
		},
	}

	// Configure proxy if specified
	if cfg.Proxy.URI != "" {
		proxyURL, err := url.Parse(cfg.Proxy.URI)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if cfg.Proxy.Username != "" {
			proxyURL.User = url.UserPassword(cfg.Proxy.Username, cfg.Proxy.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	t := &HTTPTransport{
		config: &cfg.Transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Transport.Timeout,
		},
		logger: logger,
	}

	if cfg.Transport.Breaker.Enabled {
		t.breaker = newBreaker(&cfg.Transport.Breaker, logger)
	}

	return t, nil
}

func newBreaker(cfg *BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        PluginName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Do sends the request, compressing the body first when enabled
func (t *HTTPTransport) Do(req *http.Request) (*http.Response, error) {
	if t.config.Compression && req.Body != nil {
		if err := compressRequest(req); err != nil {
			return nil, err
		}
	}

	if t.breaker == nil {
		return t.client.Do(req)
	}

	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		r, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			return r, errServerFailure
		}
		return r, nil
	})

	switch {
	case errors.Is(err, errServerFailure):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		t.logger.Debug("Request rejected by circuit breaker", zap.Error(err))
		return nil, ErrCircuitOpen
	}
	return resp, err
}

func compressRequest(req *http.Request) error {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	_ = req.Body.Close()

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := gzipWriter.Write(raw); err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}

	compressed := buf.Bytes()
	req.Body = io.NopCloser(bytes.NewReader(compressed))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(compressed)), nil
	}
	req.ContentLength = int64(len(compressed))
	req.Header.Set("Content-Encoding", "gzip")
	return nil
}

// Close closes idle connections
func (t *HTTPTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	return nil
}
