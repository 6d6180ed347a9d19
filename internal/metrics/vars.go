package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Scans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_arbitrage_scans_total",
		Help: "Round-trip quotes evaluated",
	})

	Opportunities = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_arbitrage_opportunities_total",
		Help: "Round trips that cleared the minimum profit threshold",
	})

	Signals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_copy_signals_total",
		Help: "Decoded copy-trade intents by kind",
	}, []string{"kind"})

	IntentsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_intents_dropped_total",
		Help: "Intents dropped because the execution lane was busy",
	})

	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_risk_decisions_total",
		Help: "Risk gate verdicts",
	}, []string{"verdict"})

	Executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_executions_total",
		Help: "Swap executions by result",
	}, []string{"result"})

	QuoteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_quote_errors_total",
		Help: "Number of quoter failures",
	})

	QuoteLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_quote_latency_seconds",
		Help:    "Time to obtain a venue quote",
		Buckets: prometheus.DefBuckets,
	})

	Equity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_portfolio_equity_usd",
		Help: "Cash plus invested balance",
	})

	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_open_positions",
		Help: "Number of open positions",
	})
)

func init() {
	prometheus.MustRegister(
		Scans,
		Opportunities,
		Signals,
		IntentsDropped,
		Decisions,
		Executions,
		QuoteErrors,
		QuoteLatency,
		Equity,
		OpenPositions,
	)
}
