package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла операция (включая внешний перевод для payout)
	OperationDuration *prometheus.HistogramVec

	// Traffic: общее количество доменных операций
	OperationsTotal *prometheus.CounterVec

	// Нарушения холодовой цепи
	BreachesTotal prometheus.Counter

	// Успешные выплаты по страховым случаям
	PayoutsTotal prometheus.Counter

	// Текущий пул казначейства (минорные единицы)
	TreasuryBalance prometheus.Gauge

	// Saturation: состояние Circuit Breaker платежного шлюза (0 - ок, 1 - выбило)
	GatewayBreakerState prometheus.Gauge

	// Заполненность буфера аудита (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern: если регистратор не передан (тесты),
	// используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coldchain_operation_duration_seconds",
			Help:    "Histogram of domain operation latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation", "status"}),

		OperationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "coldchain_operations_total",
			Help: "Total number of processed domain operations.",
		}, []string{"operation"}),

		BreachesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "coldchain_breaches_total",
			Help: "Total number of detected temperature breaches.",
		}),

		PayoutsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "coldchain_payouts_total",
			Help: "Total number of settled claim payouts.",
		}),

		TreasuryBalance: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "coldchain_treasury_balance",
			Help: "Current pooled treasury balance in minor units.",
		}),

		GatewayBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "coldchain_gateway_breaker_state",
			Help: "Current state of the fund gateway circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "coldchain_audit_buffer_utilization",
			Help: "Current number of events in the audit buffer.",
		}),
	}
}
