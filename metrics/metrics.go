// Package metrics exposes submission and HTTP counters in the Prometheus
// format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
)

const namespace = "stepform"

// Metrics owns a private registry so several servers can run in one process.
type Metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	requests    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Form submissions by form and outcome.",
		}, []string{"form", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Latency of remote form submissions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"form"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(m.submissions, m.latency, m.requests)
	return m
}

// Registry is the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{DisableCompression: true})
}

type instrumented struct {
	form    string
	adapter submit.Adapter
	metrics *Metrics
}

func (a *instrumented) Submit(ctx context.Context, values types.Values) submit.Result {
	return a.observe(func() submit.Result {
		return a.adapter.Submit(ctx, values)
	})
}

// SubmitPatch keeps merge patches flowing to adapters that accept them.
func (a *instrumented) SubmitPatch(ctx context.Context, values types.Values, patch []byte) submit.Result {
	pa, ok := a.adapter.(submit.PatchAdapter)
	if !ok {
		return a.Submit(ctx, values)
	}
	return a.observe(func() submit.Result {
		return pa.SubmitPatch(ctx, values, patch)
	})
}

func (a *instrumented) observe(submitFn func() submit.Result) submit.Result {
	start := time.Now()
	res := submitFn()
	a.metrics.latency.WithLabelValues(a.form).Observe(time.Since(start).Seconds())
	a.metrics.submissions.WithLabelValues(a.form, string(res.Outcome)).Inc()
	return res
}

// Instrument counts the outcomes of adapter under form.
func (m *Metrics) Instrument(form string, adapter submit.Adapter) submit.Adapter {
	if m == nil || adapter == nil {
		return adapter
	}
	return &instrumented{form: form, adapter: adapter, metrics: m}
}

// Middleware counts requests by their chi route pattern, so ids in the path
// do not explode the label set.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
