package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of handled commands and button presses.",
		},
		[]string{"command", "status"},
	)

	ticketsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_tickets_open",
		Help: "Currently open support tickets.",
	})

	ticketTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_ticket_transitions_total",
			Help: "Ticket lifecycle transitions.",
		},
		[]string{"transition"},
	)

	membershipActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_membership_actions_total",
			Help: "Membership grants, revocations, and expirations.",
		},
		[]string{"action", "status"},
	)

	platformRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_platform_requests_total",
			Help: "Outbound chat platform API requests.",
		},
		[]string{"method", "status"},
	)

	platformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_platform_request_duration_seconds",
			Help:    "Outbound chat platform API latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_ready",
		Help: "1 when the bot considers itself ready, 0 otherwise.",
	})
)

// Init registers all bot metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		commandsTotal,
		ticketsOpen,
		ticketTransitions,
		membershipActions,
		platformRequests,
		platformDuration,
		ready,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCommand records the outcome of one handled interaction.
func ObserveCommand(command, status string) {
	commandsTotal.WithLabelValues(command, status).Inc()
}

// SetOpenTickets sets the open-ticket gauge after registry mutations.
func SetOpenTickets(n int) {
	ticketsOpen.Set(float64(n))
}

// ObserveTicketTransition counts a lifecycle transition (created, claimed,
// escalated, closed).
func ObserveTicketTransition(transition string) {
	ticketTransitions.WithLabelValues(transition).Inc()
}

// ObserveMembershipAction counts a grant/revoke/expire outcome.
func ObserveMembershipAction(action, status string) {
	membershipActions.WithLabelValues(action, status).Inc()
}

// ObservePlatformRequest records one outbound platform API call.
func ObservePlatformRequest(method, status string, elapsed time.Duration) {
	platformRequests.WithLabelValues(method, status).Inc()
	platformDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}
