package airbrake

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTransport(t *testing.T, mutate func(*Config)) *HTTPTransport {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	tr, err := NewHTTPTransport(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func postTo(t *testing.T, tr *HTTPTransport, url, body string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	return tr.Do(req)
}

func TestHTTPTransport_Plain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.Empty(t, r.Header.Get("Content-Encoding"))
		assert.Equal(t, `{"a":1}`, string(raw))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	resp, err := postTo(t, newTestTransport(t, nil), server.URL, `{"a":1}`)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHTTPTransport_Compression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))

		zr, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		raw, _ := io.ReadAll(zr)
		assert.Equal(t, `{"a":1}`, string(raw))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	tr := newTestTransport(t, func(c *Config) { c.Transport.Compression = true })
	resp, err := postTo(t, tr, server.URL, `{"a":1}`)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCompressRequest_Replayable(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://localhost", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	require.NoError(t, compressRequest(req))

	first, _ := io.ReadAll(req.Body)
	replay, err := req.GetBody()
	require.NoError(t, err)
	second, _ := io.ReadAll(replay)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(len(first)), req.ContentLength)
}

func TestHTTPTransport_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tr := newTestTransport(t, func(c *Config) {
		c.Transport.Breaker = BreakerConfig{Enabled: true, MaxFailures: 2, OpenTimeout: time.Minute}
	})

	for i := 0; i < 2; i++ {
		resp, err := postTo(t, tr, server.URL, "{}")
		require.NoError(t, err, "5xx responses are handed back")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp, err := postTo(t, tr, server.URL, "{}")
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPTransport_BreakerIgnoresClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	tr := newTestTransport(t, func(c *Config) {
		c.Transport.Breaker = BreakerConfig{Enabled: true, MaxFailures: 1, OpenTimeout: time.Minute}
	})

	for i := 0; i < 3; i++ {
		resp, err := postTo(t, tr, server.URL, "{}")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		_ = resp.Body.Close()
	}
}

func TestNewHTTPTransport_BadProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Proxy.URI = "://bad"

	_, err := NewHTTPTransport(cfg, nil)
	assert.Error(t, err)
}

func TestNewHTTPTransport_ProxyCredentials(t *testing.T) {
	tr := newTestTransport(t, func(c *Config) {
		c.Proxy = ProxyConfig{URI: "http://proxy.local:3128", Username: "john", Password: "doe"}
	})

	req, err := http.NewRequest(http.MethodPost, DefaultHost, nil)
	require.NoError(t, err)

	proxyURL, err := tr.client.Transport.(*http.Transport).Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "proxy.local:3128", proxyURL.Host)
	assert.Equal(t, "john", proxyURL.User.Username())
}

func TestNewHTTPTransport_SSLVerify(t *testing.T) {
	tr := newTestTransport(t, func(c *Config) {
		verify := false
		c.Transport.SSLVerify = &verify
	})
	assert.True(t, tr.client.Transport.(*http.Transport).TLSClientConfig.InsecureSkipVerify)
}
