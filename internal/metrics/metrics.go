// Package metrics exposes archive-processing counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docintake/internal/ingest"
	"docintake/internal/model"
)

// Recorder receives pipeline and HTTP observations.
type Recorder interface {
	ingest.Observer
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) RunFinished(model.PipelineState, string, time.Duration) {}
func (Noop) MembersExtracted(int)                                   {}
func (Noop) MemberSkipped()                                         {}
func (Noop) NestedArchive(bool)                                     {}
func (Noop) DocumentsDiscovered(int)                                {}
func (Noop) ObserveRequest(string, string, int, time.Duration)      {}

// Prom implements Recorder on its own registry, so several instances can
// coexist in one process.
type Prom struct {
	registry         *prometheus.Registry
	runs             *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	membersExtracted prometheus.Counter
	membersSkipped   prometheus.Counter
	nestedArchives   *prometheus.CounterVec
	documents        prometheus.Counter
	requests         *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
}

var (
	_ Recorder = (*Prom)(nil)
	_ Recorder = Noop{}
)

func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Archive runs by final state and error kind",
		}, []string{"state", "error_kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Archive run duration by final state",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		membersExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_extracted_total",
			Help:      "Archive members written to workspaces",
		}),
		membersSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_skipped_total",
			Help:      "Archive members skipped for exceeding the per-file limit",
		}),
		nestedArchives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nested_archives_total",
			Help:      "Nested archives found during discovery by outcome",
		}, []string{"outcome"}),
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_discovered_total",
			Help:      "Supported documents discovered",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.registry.MustRegister(
		p.runs,
		p.runDuration,
		p.membersExtracted,
		p.membersSkipped,
		p.nestedArchives,
		p.documents,
		p.requests,
		p.requestLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prom) RunFinished(state model.PipelineState, errorKind string, elapsed time.Duration) {
	p.runs.WithLabelValues(string(state), errorKind).Inc()
	p.runDuration.WithLabelValues(string(state)).Observe(elapsed.Seconds())
}

func (p *Prom) MembersExtracted(n int) {
	p.membersExtracted.Add(float64(n))
}

func (p *Prom) MemberSkipped() {
	p.membersSkipped.Inc()
}

func (p *Prom) NestedArchive(extracted bool) {
	outcome := "skipped"
	if extracted {
		outcome = "extracted"
	}
	p.nestedArchives.WithLabelValues(outcome).Inc()
}

func (p *Prom) DocumentsDiscovered(n int) {
	p.documents.Add(float64(n))
}

func (p *Prom) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	p.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.requestLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves this instance's registry in the Prometheus text format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
