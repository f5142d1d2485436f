package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/dossier/internal/assistant"
)

// Metrics holds the prometheus instruments for the API.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	filesIngested   *prometheus.CounterVec
	fragmentsTotal  prometheus.Counter
	queriesTotal    *prometheus.CounterVec
}

// NewMetrics registers the API instruments on the default registry.
// Repeated registration (tests constructing multiple servers) reuses
// the already registered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: mustCounterVec(prometheus.CounterOpts{
			Name: "dossier_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: mustHistogramVec(prometheus.HistogramOpts{
			Name:    "dossier_http_request_duration_seconds",
			Help:    "HTTP request duration by method and route.",
			Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		filesIngested: mustCounterVec(prometheus.CounterOpts{
			Name: "dossier_files_ingested_total",
			Help: "Uploaded files by ingest outcome.",
		}, []string{"status"}),
		fragmentsTotal: mustCounter(prometheus.CounterOpts{
			Name: "dossier_fragments_indexed_total",
			Help: "Fragments persisted to the vector index.",
		}),
		queriesTotal: mustCounterVec(prometheus.CounterOpts{
			Name: "dossier_queries_total",
			Help: "Questions asked, split by answered vs refused.",
		}, []string{"outcome"}),
	}
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.requestsTotal.WithLabelValues(
				method, route, strconv.Itoa(c.Response().Status)).Inc()
			m.requestDuration.WithLabelValues(method, route).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ObserveIngest records the per-file outcomes and indexed fragments of
// one upload batch.
func (m *Metrics) ObserveIngest(report assistant.IngestReport) {
	for _, f := range report.Files {
		m.filesIngested.WithLabelValues(f.Status).Inc()
	}
	m.fragmentsTotal.Add(float64(report.Indexed))
}

// ObserveQuery records one question.
func (m *Metrics) ObserveQuery(refused bool) {
	outcome := "answered"
	if refused {
		outcome = "refused"
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
}

func mustCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(cv); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return cv
}

func mustCounter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return c
}

func mustHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labels)
	if err := prometheus.Register(hv); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		panic(err)
	}
	return hv
}
