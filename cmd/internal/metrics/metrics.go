// Package metrics holds the server's Prometheus collectors and the hooks
// that feed them.
package metrics

import (
	"net/http"
	"path"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwbrown115/GameServer/cmd/internal/auth/session"
	"github.com/dwbrown115/GameServer/cmd/internal/realtime"
)

const (
	namespace = "gameserver"

	labelOutcome = "outcome"
	labelPath    = "path"
	labelCode    = "code"
	labelMethod  = "method"

	otherPathValue = "other"
)

// knownPaths bounds the path label's cardinality.
var knownPaths = map[string]struct{}{
	"/authentication/register": {},
	"/authentication/login":    {},
	"/authentication/logout":   {},
	"/authentication/validate": {},
	"/player/change":           {},
	"/ws/auth":                 {},
	"/ws":                      {},
	"/healthz":                 {},
	"/readyz":                  {},
	"/metrics":                 {},
}

var sessionOutcomes = []session.Outcome{
	session.OutcomeIssued,
	session.OutcomeIssueFailed,
	session.OutcomeFresh,
	session.OutcomeRotated,
	session.OutcomeRejected,
	session.OutcomeRevoked,
}

// Collectors is the set of metrics one server instance exports.
type Collectors struct {
	gatherer prometheus.Gatherer

	sessions    *prometheus.CounterVec
	connections prometheus.Gauge
	httpLatency *prometheus.HistogramVec
}

var (
	_ session.Observer = (*Collectors)(nil)
	_ realtime.Gauge   = prometheus.Gauge(nil)
)

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := newCollectors(reg)
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	c.gatherer = reg
	return c
}

func newCollectors(r prometheus.Registerer) *Collectors {
	c := &Collectors{
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "outcomes_total",
				Help:      "Count of credential issuance and validation outcomes.",
			},
			[]string{labelOutcome},
		),
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "connections",
				Help:      "Number of live WebSocket connections.",
			},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Histogram of latencies for HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{labelPath, labelCode, labelMethod},
		),
	}
	r.MustRegister(c.sessions, c.connections, c.httpLatency)

	// Outcomes start at zero so rates are defined before the first event.
	for _, o := range sessionOutcomes {
		c.sessions.WithLabelValues(string(o))
	}
	return c
}

// ObserveSession counts one session outcome.
func (c *Collectors) ObserveSession(o session.Outcome) {
	c.sessions.WithLabelValues(string(o)).Inc()
}

// Connections is the live-connection gauge the registry keeps current.
func (c *Collectors) Connections() prometheus.Gauge {
	return c.connections
}

// Handler serves the exposition format for this instance's registry.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// InstrumentHandler records request latency with path, code and method labels.
func (c *Collectors) InstrumentHandler(wrapped http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		l := prometheus.Labels{labelPath: pathLabel(req.URL.Path)}
		promhttp.InstrumentHandlerDuration(
			c.httpLatency.MustCurryWith(l),
			wrapped,
		).ServeHTTP(rw, req)
	})
}

func pathLabel(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	p = path.Clean(p)
	if _, ok := knownPaths[p]; ok {
		return p
	}
	return otherPathValue
}
