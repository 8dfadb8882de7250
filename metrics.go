package airbrake

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rr_airbrake"
)

// metricsCollector implements prometheus.Collector interface
type metricsCollector struct {
	sent         atomic.Uint64 // 201/200 responses
	ignored      atomic.Uint64 // ignored environments and filtered notices
	requestError atomic.Uint64 // any other HTTP status
	failed       atomic.Uint64 // transport errors
	canceled     atomic.Uint64
	rateLimited  atomic.Uint64 // rejected locally while suspended

	sentDesc         *prometheus.Desc
	ignoredDesc      *prometheus.Desc
	requestErrorDesc *prometheus.Desc
	failedDesc       *prometheus.Desc
	canceledDesc     *prometheus.Desc
	rateLimitedDesc  *prometheus.Desc

	noticesBySeverity *prometheus.CounterVec
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		sentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "notices_sent_total"),
			"Total number of notices accepted by Airbrake",
			nil, nil),
		ignoredDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "notices_ignored_total"),
			"Total number of notices ignored by environment or filters",
			nil, nil),
		requestErrorDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "notices_request_error_total"),
			"Total number of notices rejected by Airbrake",
			nil, nil),
		failedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "notices_failed_total"),
			"Total number of notices that failed in transport",
			nil, nil),
		canceledDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "notices_canceled_total"),
			"Total number of canceled deliveries",
			nil, nil),
		rateLimitedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "notices_rate_limited_total"),
			"Total number of notices dropped while rate limited",
			nil, nil),

		noticesBySeverity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prometheus.BuildFQName(namespace, "", "notices_by_severity_total"),
				Help: "Total number of notices built, by severity",
			},
			[]string{"severity"}),
	}
}

func (mc *metricsCollector) observeResponse(resp *Response) {
	switch resp.Status {
	case StatusSuccess:
		mc.sent.Add(1)
	case StatusIgnored:
		mc.ignored.Add(1)
	default:
		mc.requestError.Add(1)
	}
}

func (mc *metricsCollector) incFailed()      { mc.failed.Add(1) }
func (mc *metricsCollector) incCanceled()    { mc.canceled.Add(1) }
func (mc *metricsCollector) incRateLimited() { mc.rateLimited.Add(1) }

func (mc *metricsCollector) incSeverity(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	mc.noticesBySeverity.WithLabelValues(severity).Inc()
}

// Describe sends all metric descriptions to Prometheus
func (mc *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.sentDesc
	ch <- mc.ignoredDesc
	ch <- mc.requestErrorDesc
	ch <- mc.failedDesc
	ch <- mc.canceledDesc
	ch <- mc.rateLimitedDesc

	mc.noticesBySeverity.Describe(ch)
}

// Collect sends current metric values to Prometheus
func (mc *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(mc.sentDesc, prometheus.CounterValue, float64(mc.sent.Load()))
	ch <- prometheus.MustNewConstMetric(mc.ignoredDesc, prometheus.CounterValue, float64(mc.ignored.Load()))
	ch <- prometheus.MustNewConstMetric(mc.requestErrorDesc, prometheus.CounterValue, float64(mc.requestError.Load()))
	ch <- prometheus.MustNewConstMetric(mc.failedDesc, prometheus.CounterValue, float64(mc.failed.Load()))
	ch <- prometheus.MustNewConstMetric(mc.canceledDesc, prometheus.CounterValue, float64(mc.canceled.Load()))
	ch <- prometheus.MustNewConstMetric(mc.rateLimitedDesc, prometheus.CounterValue, float64(mc.rateLimited.Load()))

	mc.noticesBySeverity.Collect(ch)
}
