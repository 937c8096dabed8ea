package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the webhook and reply flows.
// A nil *BotMetrics is valid and records nothing.
type BotMetrics struct {
	inboundTotal   *prometheus.CounterVec
	replyTotal     *prometheus.CounterVec
	shopLookups    *prometheus.CounterVec
	completions    *prometheus.CounterVec
	webhookLatency prometheus.Histogram
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "udonbot",
			Subsystem: "webhook",
			Name:      "inbound_events_total",
			Help:      "Total inbound LINE webhook events",
		}, []string{"event_type", "status"}),
		replyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "udonbot",
			Subsystem: "webhook",
			Name:      "replies_total",
			Help:      "Total LINE reply API calls",
		}, []string{"status"}),
		shopLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "udonbot",
			Subsystem: "shops",
			Name:      "lookups_total",
			Help:      "Random shop lookups by outcome",
		}, []string{"result"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "udonbot",
			Subsystem: "llm",
			Name:      "completions_total",
			Help:      "Chat completion calls by outcome",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "udonbot",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook delivery processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.replyTotal, m.shopLookups, m.completions, m.webhookLatency)
	return m
}

func (m *BotMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *BotMetrics) ObserveReply(status string) {
	if m == nil {
		return
	}
	m.replyTotal.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObserveShopLookup(result string) {
	if m == nil {
		return
	}
	m.shopLookups.WithLabelValues(result).Inc()
}

func (m *BotMetrics) ObserveCompletion(status string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}
