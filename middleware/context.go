// Package middleware adapts net/http requests to airbrake.HTTPContext and
// reports handler panics.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	airbrake "github.com/your-org/roadrunner-airbrake"
)

// UserFunc extracts the authenticated user from a request
type UserFunc func(r *http.Request) (id, name, email string)

// RequestContext is a snapshot of an *http.Request
type RequestContext struct {
	url       string
	userAgent string
	userAddr  string
	rootDir   string

	params  map[string]string
	env     map[string]string
	session map[string]string

	userID    string
	userName  string
	userEmail string

	action    string
	component string
}

// ContextOption configures NewRequestContext
type ContextOption func(*RequestContext, *http.Request)

// WithUser resolves the user through fn
func WithUser(fn UserFunc) ContextOption {
	return func(rc *RequestContext, r *http.Request) {
		rc.userID, rc.userName, rc.userEmail = fn(r)
	}
}

// WithRootDirectory sets the application root reported with notices
func WithRootDirectory(dir string) ContextOption {
	return func(rc *RequestContext, _ *http.Request) {
		rc.rootDir = dir
	}
}

// WithRoute sets action and component explicitly
func WithRoute(action, component string) ContextOption {
	return func(rc *RequestContext, _ *http.Request) {
		rc.action, rc.component = action, component
	}
}

// NewRequestContext snapshots r. Query and form values become parameters,
// headers become CGI style environment variables and cookies become the
// session. When chi routed the request its pattern is used as component and
// the method as action.
func NewRequestContext(r *http.Request, opts ...ContextOption) *RequestContext {
	rc := &RequestContext{
		url:       requestURL(r),
		userAgent: r.UserAgent(),
		userAddr:  remoteIP(r.RemoteAddr),
		params:    requestParams(r),
		env:       cgiVars(r),
		session:   cookies(r),
	}

	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			rc.action = r.Method
			rc.component = pattern
		}
	}

	for _, opt := range opts {
		opt(rc, r)
	}
	return rc
}

var _ airbrake.HTTPContext = (*RequestContext)(nil)
var _ airbrake.RequestOrigin = (*RequestContext)(nil)

func (rc *RequestContext) Session() map[string]string         { return rc.session }
func (rc *RequestContext) Parameters() map[string]string      { return rc.params }
func (rc *RequestContext) EnvironmentVars() map[string]string { return rc.env }
func (rc *RequestContext) UserAgent() string                  { return rc.userAgent }
func (rc *RequestContext) URL() string                        { return rc.url }
func (rc *RequestContext) UserID() string                     { return rc.userID }
func (rc *RequestContext) UserName() string                   { return rc.userName }
func (rc *RequestContext) UserEmail() string                  { return rc.userEmail }
func (rc *RequestContext) Action() string                     { return rc.action }
func (rc *RequestContext) Component() string                  { return rc.component }
func (rc *RequestContext) UserAddr() string                   { return rc.userAddr }
func (rc *RequestContext) RootDirectory() string              { return rc.rootDir }

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// requestParams joins repeated values with commas. The body is only parsed
// for form content types that ParseForm understands.
func requestParams(r *http.Request) map[string]string {
	_ = r.ParseForm()

	values := r.Form
	if values == nil {
		values = r.URL.Query()
	}
	if len(values) == 0 {
		return nil
	}

	params := make(map[string]string, len(values))
	for k, v := range values {
		params[k] = strings.Join(v, ",")
	}
	return params
}

func cgiVars(r *http.Request) map[string]string {
	env := map[string]string{
		"REQUEST_METHOD":  r.Method,
		"REQUEST_URI":     r.URL.RequestURI(),
		"SERVER_PROTOCOL": r.Proto,
		"REMOTE_ADDR":     r.RemoteAddr,
		"HTTP_HOST":       r.Host,
	}
	for name, values := range r.Header {
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		env[key] = strings.Join(values, ",")
	}
	return env
}

func cookies(r *http.Request) map[string]string {
	cs := r.Cookies()
	if len(cs) == 0 {
		return nil
	}
	session := make(map[string]string, len(cs))
	for _, c := range cs {
		session[c.Name] = c.Value
	}
	return session
}
