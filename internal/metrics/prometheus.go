package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Redemption outcomes, used as the "outcome" label.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalidCode   = "invalid_code"
	OutcomeInvalidClient = "invalid_client"
	OutcomeError         = "error"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	CodesIssuedTotal   prometheus.Counter
	RedemptionsTotal   *prometheus.CounterVec
	TokensCreatedTotal prometheus.Counter
	CodesReapedTotal   prometheus.Counter
	RateLimitedTotal   prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves them
// unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CodesIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fence_authorization_codes_issued_total",
			Help: "Total number of authorization codes issued.",
		}),
		RedemptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fence_authorization_code_redemptions_total",
			Help: "Total number of authorization code redemptions by outcome.",
		}, []string{"outcome"}),
		TokensCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fence_tokens_created_total",
			Help: "Total number of access tokens created.",
		}),
		CodesReapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fence_authorization_codes_reaped_total",
			Help: "Total number of expired authorization codes removed.",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fence_token_requests_rate_limited_total",
			Help: "Total number of token requests rejected by the rate limiter.",
		}),
	}

	if reg == nil {
		return m
	}

	for name, c := range map[string]prometheus.Collector{
		"CodesIssuedTotal":   m.CodesIssuedTotal,
		"RedemptionsTotal":   m.RedemptionsTotal,
		"TokensCreatedTotal": m.TokensCreatedTotal,
		"CodesReapedTotal":   m.CodesReapedTotal,
		"RateLimitedTotal":   m.RateLimitedTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")

	return m
}

// CodeIssued counts an issued authorization code.
func (m *Metrics) CodeIssued() { m.CodesIssuedTotal.Inc() }

// CodeRedeemed counts a redemption attempt. A successful one also counts a token.
func (m *Metrics) CodeRedeemed(outcome string) {
	m.RedemptionsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		m.TokensCreatedTotal.Inc()
	}
}

// CodesReaped counts codes removed by the reaper.
func (m *Metrics) CodesReaped(n int64) { m.CodesReapedTotal.Add(float64(n)) }

// RateLimited counts a rejected token request.
func (m *Metrics) RateLimited() { m.RateLimitedTotal.Inc() }
