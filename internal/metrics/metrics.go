package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for a campaign run
type Metrics struct {
	// Delivery counters
	EmailsSentTotal      *prometheus.CounterVec
	EmailsFailedTotal    *prometheus.CounterVec
	EmailsNoAddressTotal prometheus.Counter

	// Engagement counters, fed by the tracking callbacks
	OpensTotal        prometheus.Counter
	ClicksTotal       prometheus.Counter
	RepliesTotal      prometheus.Counter
	BouncesTotal      prometheus.Counter
	UnsubscribesTotal prometheus.Counter
	UnknownTokenTotal prometheus.Counter

	// Pacing gauges
	SentToday   prometheus.Gauge
	DailyLimit  prometheus.Gauge
	CampaignDay prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailramp_emails_sent_total",
				Help: "Total number of emails handed off to the relay",
			},
			[]string{"provider"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailramp_emails_failed_total",
				Help: "Total number of failed transport attempts",
			},
			[]string{"provider"},
		),
		EmailsNoAddressTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailramp_emails_no_address_total",
				Help: "Total number of recipients with no plausible address",
			},
		),
		OpensTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailramp_opens_total",
				Help: "Total number of open-pixel callbacks",
			},
		),
		ClicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailramp_clicks_total",
				Help: "Total number of click callbacks",
			},
		),
		RepliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailramp_replies_total",
				Help: "Total number of reply events",
			},
		),
		BouncesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailramp_bounces_total",
				Help: "Total number of bounce events",
			},
		),
		UnsubscribesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailramp_unsubscribes_total",
				Help: "Total number of unsubscribe callbacks",
			},
		),
		UnknownTokenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailramp_unknown_token_total",
				Help: "Total number of callbacks with an unknown tracking token",
			},
		),
		SentToday: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailramp_sent_today",
				Help: "Emails sent so far on the current calendar day",
			},
		),
		DailyLimit: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailramp_daily_limit",
				Help: "Daily send limit currently in effect (warmup ramp or steady state)",
			},
		),
		CampaignDay: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailramp_campaign_day",
				Help: "Days elapsed since campaign start, 1-based",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.EmailsNoAddressTotal,
		m.OpensTotal,
		m.ClicksTotal,
		m.RepliesTotal,
		m.BouncesTotal,
		m.UnsubscribesTotal,
		m.UnknownTokenTotal,
		m.SentToday,
		m.DailyLimit,
		m.CampaignDay,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
