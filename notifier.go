package airbrake

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// maxResponseBodyRead limits how much of a reply is read for id and url
const maxResponseBodyRead = 64 * 1024

// Filter inspects or rewrites a notice before it is sent. Returning nil drops
// the notice.
type Filter func(n *Notice) *Notice

// Reporter is the surface adapters and other plugins report through
type Reporter interface {
	Notify(err error, opts ...NotifyOption) error
	NotifyContext(ctx context.Context, err error, opts ...NotifyOption) (*Response, error)
}

// Notifier builds notices from errors and delivers them to Airbrake
type Notifier struct {
	config     *Config
	logger     *zap.Logger
	outcome    OutcomeLogger
	transport  Doer
	serializer Serializer
	params     *ParameterFilter

	rateLimiter *RateLimiter
	metrics     *metricsCollector
	inflight    *inflight

	hostname    string
	osVersion   string
	langVersion string

	filtersMu sync.RWMutex
	filters   []Filter
}

// Option configures a Notifier
type Option func(*Notifier)

// WithLogger sets the diagnostic logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithOutcomeLogger overrides the outcome logger derived from Config.LogFile
func WithOutcomeLogger(l OutcomeLogger) Option {
	return func(n *Notifier) {
		n.outcome = l
	}
}

// WithTransport replaces the HTTP transport
func WithTransport(d Doer) Option {
	return func(n *Notifier) {
		n.transport = d
	}
}

// WithSerializer replaces the serializer selected by Config.Format
func WithSerializer(s Serializer) Option {
	return func(n *Notifier) {
		n.serializer = s
	}
}

// New creates a Notifier. cfg must not be modified afterwards.
func New(cfg *Config, opts ...Option) (*Notifier, error) {
	const op = errors.Op("airbrake_new")

	if cfg == nil {
		return nil, errors.E(op, errors.Str("config is nil"))
	}

	params, err := NewParameterFilter(cfg.BlockList, cfg.AllowList)
	if err != nil {
		return nil, errors.E(op, err)
	}

	n := &Notifier{
		config:      cfg,
		logger:      zap.NewNop(),
		params:      params,
		metrics:     newMetricsCollector(),
		osVersion:   runtime.GOOS + "/" + runtime.GOARCH,
		langVersion: "go/" + runtime.Version(),
	}
	n.hostname, _ = os.Hostname()

	for _, opt := range opts {
		opt(n)
	}

	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	n.rateLimiter = NewRateLimiter(n.logger)
	n.inflight = newInflight(cfg.MaxInFlight, n.logger)

	if n.outcome == nil && cfg.LogFile != "" {
		wd, _ := os.Getwd()
		n.outcome = NewFileOutcomeLogger(cfg.LogFile, wd)
	}

	if n.serializer == nil {
		if cfg.Format == FormatXML {
			n.serializer = XMLSerializer{APIKey: cfg.ProjectKey}
		} else {
			n.serializer = JSONSerializer{}
		}
	}

	if n.transport == nil {
		t, err := NewHTTPTransport(cfg, n.logger)
		if err != nil {
			return nil, errors.E(op, err)
		}
		n.transport = t
	}

	return n, nil
}

// AddFilter appends a filter; filters run in registration order. Safe to call
// while deliveries are running.
func (n *Notifier) AddFilter(f Filter) {
	n.filtersMu.Lock()
	n.filters = append(n.filters, f)
	n.filtersMu.Unlock()
}

// Collector exposes delivery counters for Prometheus
func (n *Notifier) Collector() prometheus.Collector {
	return n.metrics
}

type notifyOptions struct {
	severity    Severity
	httpContext HTTPContext
}

// NotifyOption adjusts a single notify call
type NotifyOption func(*notifyOptions)

// WithSeverity sets the notice severity, SeverityError by default
func WithSeverity(s Severity) NotifyOption {
	return func(o *notifyOptions) {
		o.severity = s
	}
}

// WithHTTPContext attaches the request the error happened in
func WithHTTPContext(hc HTTPContext) NotifyOption {
	return func(o *notifyOptions) {
		o.httpContext = hc
	}
}

// Notify reports err without waiting for the delivery. Only configuration
// errors are returned; the delivery outcome goes to the outcome logger.
func (n *Notifier) Notify(err error, opts ...NotifyOption) error {
	_, e := n.NotifyAsync(context.Background(), err, opts...)
	return e
}

// NotifyContext reports err and waits for the delivery outcome
func (n *Notifier) NotifyContext(ctx context.Context, err error, opts ...NotifyOption) (*Response, error) {
	f, e := n.NotifyAsync(ctx, err, opts...)
	if e != nil {
		return nil, e
	}
	return f.Wait(ctx)
}

// NotifyAsync builds a notice for err and starts delivering it. A missing
// project id or key is returned right away; everything after that, including
// transport failures and cancellation through ctx, is reported by the Future.
func (n *Notifier) NotifyAsync(ctx context.Context, err error, opts ...NotifyOption) (*Future, error) {
	const op = errors.Op("airbrake_notify")

	if e := n.checkProject(op); e != nil {
		return nil, e
	}

	o := &notifyOptions{severity: SeverityError}
	for _, opt := range opts {
		opt(o)
	}

	if n.config.EnvironmentIgnored() {
		return n.ignored("environment"), nil
	}

	notice := n.BuildNotice(err, o.severity, o.httpContext)
	return n.deliver(ctx, notice)
}

// SendNoticeAsync delivers a notice built elsewhere, for example by a worker
// talking RPC. Filters still apply.
func (n *Notifier) SendNoticeAsync(ctx context.Context, notice *Notice) (*Future, error) {
	const op = errors.Op("airbrake_send_notice")

	if e := n.checkProject(op); e != nil {
		return nil, e
	}
	if notice == nil {
		return nil, errors.E(op, errors.Str("notice is nil"))
	}
	if n.config.EnvironmentIgnored() {
		return n.ignored("environment"), nil
	}

	if notice.Context == nil {
		notice.Context = &Context{}
	}
	notice.Context.Notifier = newNotifierInfo()

	return n.deliver(ctx, notice)
}

// BuildNotice assembles the notice NotifyAsync would send for err
func (n *Notifier) BuildNotice(err error, severity Severity, hc HTTPContext) *Notice {
	b := NewNoticeBuilder()
	b.SetErrorEntries(err)
	b.SetConfigurationContext(n.config)
	b.SetEnvironmentContext(n.hostname, n.osVersion, n.langVersion)
	b.SetSeverity(severity)
	b.SetHTTPContext(hc, n.params)
	return b.ToNotice()
}

// NotifyPanic reports a recovered panic value as a critical notice
func (n *Notifier) NotifyPanic(v any, opts ...NotifyOption) error {
	opts = append([]NotifyOption{WithSeverity(SeverityCritical)}, opts...)
	return n.Notify(NewPanicError(v, 1), opts...)
}

// Recover reports a panic and panics again. Use it as `defer n.Recover()`.
func (n *Notifier) Recover(opts ...NotifyOption) {
	if v := recover(); v != nil {
		opts = append([]NotifyOption{WithSeverity(SeverityCritical)}, opts...)
		if err := n.Notify(NewPanicError(v, 1), opts...); err != nil {
			n.logger.Error("Failed to report panic", zap.Error(err))
		}
		panic(v)
	}
}

// Flush waits for running deliveries to finish or ctx to be done
func (n *Notifier) Flush(ctx context.Context) error {
	return n.inflight.wait(ctx)
}

// Close flushes and rejects further deliveries with ErrNotifierClosed
func (n *Notifier) Close(ctx context.Context) error {
	err := n.inflight.close(ctx)
	if t, ok := n.transport.(*HTTPTransport); ok {
		_ = t.Close()
	}
	return err
}

// ForContext binds an HTTP context for the following calls
func (n *Notifier) ForContext(hc HTTPContext) *ContextNotifier {
	return &ContextNotifier{notifier: n, httpContext: hc}
}

func (n *Notifier) checkProject(op errors.Op) error {
	if n.config.ProjectID == "" {
		return errors.E(op, ErrProjectIDRequired)
	}
	if n.config.ProjectKey == "" {
		return errors.E(op, ErrProjectKeyRequired)
	}
	return nil
}

func (n *Notifier) endpoint() string {
	if n.config.Format == FormatXML {
		return LegacyNoticesURL(n.config.Host)
	}
	// project id and key were checked by the caller
	u, _ := NoticesURL(n.config.Host, n.config.ProjectID, n.config.ProjectKey)
	return u
}

func (n *Notifier) ignored(reason string) *Future {
	n.logger.Debug("Notice ignored", zap.String("reason", reason))
	resp := &Response{Status: StatusIgnored}
	n.metrics.observeResponse(resp)
	n.logOutcome(resp, nil)
	return resolvedFuture(resp, nil)
}

func (n *Notifier) applyFilters(notice *Notice) *Notice {
	n.filtersMu.RLock()
	filters := make([]Filter, len(n.filters))
	copy(filters, n.filters)
	n.filtersMu.RUnlock()

	for _, f := range filters {
		if notice == nil {
			break
		}
		notice = f(notice)
	}
	return notice
}

func (n *Notifier) deliver(ctx context.Context, notice *Notice) (*Future, error) {
	const op = errors.Op("airbrake_deliver")

	notice = n.applyFilters(notice)
	if notice == nil {
		return n.ignored("filter"), nil
	}
	if notice.Context != nil {
		n.metrics.incSeverity(notice.Context.Severity)
	}

	body, err := n.serializer.Serialize(notice)
	if err != nil {
		n.logOutcome(nil, err)
		return resolvedFuture(nil, errors.E(op, err)), nil
	}

	if err := n.inflight.add(); err != nil {
		return nil, errors.E(op, err)
	}

	f := newFuture()
	go func() {
		defer n.inflight.done()

		resp, err := n.post(ctx, body)
		f.resolve(resp, err)
		n.logOutcome(resp, err)
	}()

	return f, nil
}

// post performs the network round trip. Any status is a completed round
// trip; only transport failures come back as errors.
func (n *Notifier) post(ctx context.Context, body []byte) (*Response, error) {
	if n.rateLimiter.IsRateLimited() {
		n.metrics.incRateLimited()
		return nil, ErrRateLimited
	}

	if err := n.inflight.acquire(ctx); err != nil {
		n.metrics.incCanceled()
		return nil, err
	}
	defer n.inflight.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint(), bytes.NewReader(body))
	if err != nil {
		n.metrics.incFailed()
		return nil, err
	}
	req.Header.Set("Content-Type", n.serializer.ContentType())
	req.Header.Set("Accept", n.serializer.ContentType())

	n.logger.Debug("Sending notice", zap.Int("payload_size", len(body)))

	httpResp, err := n.transport.Do(req)
	if err != nil {
		if IsCanceled(err) {
			n.metrics.incCanceled()
		} else {
			n.metrics.incFailed()
		}
		n.logger.Debug("Notice delivery failed", zap.Error(err))
		return nil, err
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodyRead))
	if err != nil {
		n.logger.Warn("Failed to read response body", zap.Error(err))
	}

	n.rateLimiter.HandleResponse(httpResp.StatusCode, httpResp.Header)

	resp := n.serializer.ParseResponse(httpResp.StatusCode, raw)
	n.metrics.observeResponse(resp)

	n.logger.Debug("Notice delivered",
		zap.Int("status_code", httpResp.StatusCode),
		zap.Stringer("status", resp.Status),
		zap.String("id", resp.ID))

	return resp, nil
}

func (n *Notifier) logOutcome(resp *Response, err error) {
	if n.outcome == nil {
		return
	}
	if err != nil {
		n.outcome.LogError(err)
		return
	}
	n.outcome.LogResponse(resp)
}

// ContextNotifier is a Notifier bound to one HTTP context
type ContextNotifier struct {
	notifier    *Notifier
	httpContext HTTPContext
}

func (c *ContextNotifier) options(opts []NotifyOption) []NotifyOption {
	return append([]NotifyOption{WithHTTPContext(c.httpContext)}, opts...)
}

// Notify is Notifier.Notify with the bound HTTP context
func (c *ContextNotifier) Notify(err error, opts ...NotifyOption) error {
	return c.notifier.Notify(err, c.options(opts)...)
}

// NotifyAsync is Notifier.NotifyAsync with the bound HTTP context
func (c *ContextNotifier) NotifyAsync(ctx context.Context, err error, opts ...NotifyOption) (*Future, error) {
	return c.notifier.NotifyAsync(ctx, err, c.options(opts)...)
}

// NotifyContext is Notifier.NotifyContext with the bound HTTP context
func (c *ContextNotifier) NotifyContext(ctx context.Context, err error, opts ...NotifyOption) (*Response, error) {
	return c.notifier.NotifyContext(ctx, err, c.options(opts)...)
}
