package proxy

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway collectors on a private registry so several
// servers can coexist in one process.
type Metrics struct {
	registry        *prometheus.Registry
	chatRequests    *prometheus.CounterVec
	chatDuration    *prometheus.HistogramVec
	fragments       prometheus.Counter
	malformedLines  prometheus.Counter
	oauthExchanges  *prometheus.CounterVec
	tokenPoolSize   prometheus.Gauge
	estimatedTokens *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "augment2api",
			Name:      "chat_requests_total",
			Help:      "Chat completion requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		chatDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "augment2api",
			Name:      "chat_request_duration_seconds",
			Help:      "Wall time of chat completion requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "augment2api",
			Name:      "relayed_fragments_total",
			Help:      "Upstream fragments relayed to clients.",
		}),
		malformedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "augment2api",
			Name:      "malformed_upstream_lines_total",
			Help:      "Upstream lines skipped because they were not JSON objects.",
		}),
		oauthExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "augment2api",
			Name:      "oauth_exchanges_total",
			Help:      "OAuth code exchanges by result.",
		}, []string{"result"}),
		tokenPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "augment2api",
			Name:      "token_pool_size",
			Help:      "Tokens currently in the credential pool.",
		}),
		estimatedTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "augment2api",
			Name:      "estimated_tokens_total",
			Help:      "Estimated tokens on non-streaming requests by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.chatRequests,
		m.chatDuration,
		m.fragments,
		m.malformedLines,
		m.oauthExchanges,
		m.tokenPoolSize,
		m.estimatedTokens,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
