// Package metrics exposes Prometheus counters for the bridge and the HTTP routes that serve them.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "techlife"

// Reasons a discovery message is ignored.
const (
	ReasonMalformed = "malformed"
	ReasonDuplicate = "duplicate"
	ReasonForeign   = "foreign"
)

var (
	DevicesDiscovered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "devices_discovered_total",
		Help:      "Strips seen for the first time on their state topic.",
	})

	DiscoveryIgnored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discovery_messages_ignored_total",
		Help:      "Messages on the discovery subscription that did not create a device, by reason.",
	}, []string{"reason"})

	RegistrationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registration_errors_total",
		Help:      "Discovered strips that could not be registered with Home Assistant.",
	})

	FramesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_published_total",
		Help:      "Command frames published to strips, by command.",
	}, []string{"command"})

	PublishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_errors_total",
		Help:      "Command frames that failed to publish, by command.",
	}, []string{"command"})

	StateMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_messages_total",
		Help:      "Messages received on strip state topics.",
	})
)

func init() {
	prometheus.MustRegister(
		DevicesDiscovered,
		DiscoveryIgnored,
		RegistrationErrors,
		FramesPublished,
		PublishErrors,
		StateMessages,
	)
}

// Router serves /metrics from the default Prometheus registry and a /health endpoint.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
