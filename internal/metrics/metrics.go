package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	activeContexts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browserhub",
		Name:      "active_contexts",
		Help:      "Number of browsing contexts registered in the context registry.",
	})
	contextsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "browserhub",
		Name:      "contexts_created_total",
		Help:      "Browsing contexts created by the context registry.",
	})
	browserLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browserhub",
		Name:      "browser_launches_total",
		Help:      "Pooled browser processes launched, by mode.",
	}, []string{"mode"})
	loginSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browserhub",
		Name:      "login_sessions_active",
		Help:      "Interactive login windows currently open.",
	})
	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "browserhub",
		Name:      "action_duration_seconds",
		Help:      "Duration of page actions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action", "outcome"})
	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browserhub",
		Name:      "ws_clients",
		Help:      "Connected websocket relay clients.",
	})
)

// SetActiveContexts records the registry size
func SetActiveContexts(n int) {
	activeContexts.Set(float64(n))
}

// ContextCreated counts one new registry context
func ContextCreated() {
	contextsCreated.Inc()
}

// BrowserLaunched counts one pooled launch for mode
func BrowserLaunched(mode string) {
	browserLaunches.WithLabelValues(mode).Inc()
}

// SetLoginSessions records the number of open login windows
func SetLoginSessions(n int) {
	loginSessions.Set(float64(n))
}

// ObserveAction records how long an action took
func ObserveAction(action string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	actionDuration.WithLabelValues(action, outcome).Observe(time.Since(started).Seconds())
}

// WSClientConnected and WSClientDisconnected track relay clients
func WSClientConnected()    { wsClients.Inc() }
func WSClientDisconnected() { wsClients.Dec() }

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
