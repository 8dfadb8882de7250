package airbrake

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// Exception mimics a plain error type with a readable name
type Exception struct {
	msg   string
	inner error
}

func (e *Exception) Error() string { return e.msg }
func (e *Exception) Unwrap() error { return e.inner }

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type capturedRequest struct {
	method string
	url    string
	header http.Header
	body   string
}

// recordingDoer answers every request with the same response and keeps a copy
// of what it received.
type recordingDoer struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	body     string
	header   http.Header
}

func newRecordingDoer(status int, body string) *recordingDoer {
	return &recordingDoer{status: status, body: body}
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	raw, _ := io.ReadAll(req.Body)

	d.mu.Lock()
	d.requests = append(d.requests, capturedRequest{
		method: req.Method,
		url:    req.URL.String(),
		header: req.Header.Clone(),
		body:   string(raw),
	})
	d.mu.Unlock()

	resp := httpResponse(d.status, d.body)
	for k, v := range d.header {
		resp.Header[k] = v
	}
	return resp, nil
}

func (d *recordingDoer) calls() []capturedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]capturedRequest(nil), d.requests...)
}

type recordingOutcome struct {
	mu        sync.Mutex
	responses []*Response
	errs      []error
}

func (r *recordingOutcome) LogResponse(resp *Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
}

func (r *recordingOutcome) LogError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingOutcome) snapshot() ([]*Response, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Response(nil), r.responses...), append([]error(nil), r.errs...)
}

type fakeHTTPContext struct {
	session, params, env map[string]string

	userAgent, url                string
	userID, userName, userEmail   string
	action, component             string
}

func (f *fakeHTTPContext) Session() map[string]string         { return f.session }
func (f *fakeHTTPContext) Parameters() map[string]string      { return f.params }
func (f *fakeHTTPContext) EnvironmentVars() map[string]string { return f.env }
func (f *fakeHTTPContext) UserAgent() string                  { return f.userAgent }
func (f *fakeHTTPContext) URL() string                        { return f.url }
func (f *fakeHTTPContext) UserID() string                     { return f.userID }
func (f *fakeHTTPContext) UserName() string                   { return f.userName }
func (f *fakeHTTPContext) UserEmail() string                  { return f.userEmail }
func (f *fakeHTTPContext) Action() string                     { return f.action }
func (f *fakeHTTPContext) Component() string                  { return f.component }
