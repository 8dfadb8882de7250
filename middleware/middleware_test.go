package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	airbrake "github.com/your-org/roadrunner-airbrake"
)

type captureDoer struct {
	mu     sync.Mutex
	bodies []string
}

func (d *captureDoer) Do(req *http.Request) (*http.Response, error) {
	raw, _ := io.ReadAll(req.Body)

	d.mu.Lock()
	d.bodies = append(d.bodies, string(raw))
	d.mu.Unlock()

	return &http.Response{
		StatusCode: http.StatusCreated,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(`{"id":"1"}`)),
	}, nil
}

func (d *captureDoer) notices(t *testing.T) []*airbrake.Notice {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*airbrake.Notice, 0, len(d.bodies))
	for _, b := range d.bodies {
		n := &airbrake.Notice{}
		require.NoError(t, json.Unmarshal([]byte(b), n))
		out = append(out, n)
	}
	return out
}

func newNotifier(t *testing.T) (*airbrake.Notifier, *captureDoer) {
	t.Helper()
	cfg := &airbrake.Config{ProjectID: "127348", ProjectKey: "e2046ca6e4e9214b24ad252e3c99a0f6", BlockList: []string{"password"}}
	cfg.InitDefaults()

	doer := &captureDoer{}
	n, err := airbrake.New(cfg, airbrake.WithTransport(doer))
	require.NoError(t, err)
	return n, doer
}

func TestNewRequestContext(t *testing.T) {
	form := url.Values{"password": {"secret"}, "tag": {"a", "b"}}
	r := httptest.NewRequest(http.MethodPost, "http://shop.example/orders?page=2", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("User-Agent", "curl/8.0")
	r.Header.Set("X-Forwarded-Proto", "https")
	r.AddCookie(&http.Cookie{Name: "session_id", Value: "abc"})
	r.RemoteAddr = "10.0.0.7:52814"

	rc := NewRequestContext(r,
		WithUser(func(*http.Request) (string, string, string) { return "42", "John", "john@example.com" }),
		WithRootDirectory("/srv/app"),
	)

	assert.Equal(t, "https://shop.example/orders?page=2", rc.URL())
	assert.Equal(t, "curl/8.0", rc.UserAgent())
	assert.Equal(t, "10.0.0.7", rc.UserAddr())
	assert.Equal(t, "/srv/app", rc.RootDirectory())
	assert.Equal(t, map[string]string{"password": "secret", "tag": "a,b", "page": "2"}, rc.Parameters())
	assert.Equal(t, map[string]string{"session_id": "abc"}, rc.Session())
	assert.Equal(t, "POST", rc.EnvironmentVars()["REQUEST_METHOD"])
	assert.Equal(t, "/orders?page=2", rc.EnvironmentVars()["REQUEST_URI"])
	assert.Equal(t, "curl/8.0", rc.EnvironmentVars()["HTTP_USER_AGENT"])
	assert.Equal(t, "shop.example", rc.EnvironmentVars()["HTTP_HOST"])
	assert.Equal(t, "42", rc.UserID())
	assert.Equal(t, "John", rc.UserName())
	assert.Equal(t, "john@example.com", rc.UserEmail())
	assert.Empty(t, rc.Action())
	assert.Empty(t, rc.Component())
}

func TestNewRequestContext_WithRoute(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := NewRequestContext(r, WithRoute("index", "home"))

	assert.Equal(t, "index", rc.Action())
	assert.Equal(t, "home", rc.Component())
	assert.Nil(t, rc.Parameters())
	assert.Nil(t, rc.Session())
}

func TestRecoverer_ChiRoute(t *testing.T) {
	n, doer := newNotifier(t)

	router := chi.NewRouter()
	router.Use(Recoverer(n))
	router.Get("/orders/{id}", func(http.ResponseWriter, *http.Request) {
		panic("order not found")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/17?password=hunter2", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	require.NoError(t, n.Flush(context.Background()))
	notices := doer.notices(t)
	require.Len(t, notices, 1)

	notice := notices[0]
	require.NotEmpty(t, notice.Errors)
	assert.Equal(t, "panic", notice.Errors[0].Type)
	assert.Equal(t, "panic: order not found", notice.Errors[0].Message)
	assert.Equal(t, "GET", notice.Context.Action)
	assert.Equal(t, "/orders/{id}", notice.Context.Component)
	assert.Equal(t, "critical", notice.Context.Severity)
	assert.Equal(t, "http://example.com/orders/17?password=hunter2", notice.Context.URL)
	assert.Equal(t, "[Filtered]", notice.Params["password"])
}

func TestRecoverer_NoPanic(t *testing.T) {
	n, doer := newNotifier(t)

	handler := Recoverer(n)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, n.Flush(context.Background()))
	assert.Empty(t, doer.notices(t))
}

func TestRecoverer_AbortHandler(t *testing.T) {
	n, doer := newNotifier(t)

	handler := Recoverer(n)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.NoError(t, n.Flush(context.Background()))
	assert.Empty(t, doer.notices(t))
}

func TestReport(t *testing.T) {
	n, doer := newNotifier(t)

	r := httptest.NewRequest(http.MethodGet, "/checkout", nil)
	require.NoError(t, Report(n, r, io.ErrUnexpectedEOF, WithRoute("checkout", "payments")))
	require.NoError(t, n.Flush(context.Background()))

	notices := doer.notices(t)
	require.Len(t, notices, 1)
	assert.Equal(t, "errorString: unexpected EOF", notices[0].Errors[0].Message)
	assert.Equal(t, "checkout", notices[0].Context.Action)
	assert.Equal(t, "payments", notices[0].Context.Component)
}
