// Package metrics defines and registers all custom Prometheus metrics for the
// account service. It is the single source of truth for metric names, labels,
// and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accounts"

// ── Authentication metrics ────────────────────────────────────────────────────

// LoginsTotal counts credential login attempts.
// Label:
//   - result: "success", "failure", "locked", or "two_factor_required"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of credential login attempts, by result.",
	},
	[]string{"result"},
)

// TwoFactorTotal counts two-factor completion attempts.
// Labels:
//   - method: "totp" or "recovery_code"
//   - result: "success" or "failure"
var TwoFactorTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "two_factor_total",
		Help:      "Total number of two-factor completion attempts, by method and result.",
	},
	[]string{"method", "result"},
)

// RefreshTotal counts refresh-token redemptions.
// Label:
//   - result: "success", "reuse", "expired", "invalidated", or "not_found"
var RefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_total",
		Help:      "Total number of refresh token redemptions, by result.",
	},
	[]string{"result"},
)

// RefreshDuration measures end-to-end refresh latency, including the atomic
// consume and the issuance of the replacement pair.
var RefreshDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Duration of refresh token redemption and rotation.",
		Buckets:   prometheus.DefBuckets,
	},
)

// NewRefreshTimer starts a timer that records into RefreshDuration when
// ObserveDuration is called.
func NewRefreshTimer() *prometheus.Timer {
	return prometheus.NewTimer(RefreshDuration)
}

// ── External login metrics ────────────────────────────────────────────────────

// ExternalLoginsTotal counts completed OAuth callbacks.
// Labels:
//   - provider: provider name (e.g. "google")
//   - outcome: "logged_in", "linked", "already_linked", "account_created", or "error"
var ExternalLoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "external_logins_total",
		Help:      "Total number of external login callbacks, by provider and outcome.",
	},
	[]string{"provider", "outcome"},
)

// ── Admin metrics ─────────────────────────────────────────────────────────────

// AdminActionsTotal counts administrative actions.
// Labels:
//   - action: e.g. "assign_role", "lock", "delete"
//   - result: "success" or "denied"
var AdminActionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_actions_total",
		Help:      "Total number of administrative actions, by action and result.",
	},
	[]string{"action", "result"},
)
