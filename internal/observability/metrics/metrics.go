package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	metricPrefix = "qxlog_"

	resultSuccess = "success"
	resultError   = "error"
	resultStale   = "stale"
)

var (
	registerOnce sync.Once

	pricingRuleTotal     *prometheus.CounterVec
	pricingUpdateTotal   *prometheus.CounterVec
	procedureOpsTotal    *prometheus.CounterVec
	settlementTotal      *prometheus.CounterVec
	settlementLatency    *prometheus.HistogramVec
	settlementItems      prometheus.Histogram
	batchVoidTotal       *prometheus.CounterVec
	voucherExportTotal   *prometheus.CounterVec
	voucherExportLatency *prometheus.HistogramVec
)

// Init registers service metrics and DB-backed gauges.
func Init(db *sql.DB, logger logrus.FieldLogger) {
	registerOnce.Do(func() {
		pricingRuleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pricing_rule_total",
				Help: "Total pricing calculations by selected rule",
			},
			[]string{"rule"},
		)
		pricingUpdateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pricing_update_total",
				Help: "Total pricing setting updates by result",
			},
			[]string{"result"},
		)
		procedureOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "procedure_ops_total",
				Help: "Total procedure ledger operations by op and result",
			},
			[]string{"op", "result"},
		)
		settlementTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_total",
				Help: "Total payout settlements by result",
			},
			[]string{"result"},
		)
		settlementLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_latency_seconds",
				Help:    "Payout settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementItems = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_items",
				Help:    "Procedures per settled payout batch",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250},
			},
		)
		batchVoidTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payout_void_total",
				Help: "Total payout batch voids by result",
			},
			[]string{"result"},
		)
		voucherExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "voucher_export_total",
				Help: "Total voucher export operations by format and result",
			},
			[]string{"format", "result"},
		)
		voucherExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "voucher_export_latency_seconds",
				Help:    "Voucher export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			pricingRuleTotal,
			pricingUpdateTotal,
			procedureOpsTotal,
			settlementTotal,
			settlementLatency,
			settlementItems,
			batchVoidTotal,
			voucherExportTotal,
			voucherExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncPricingRule counts a calculation that selected rule.
func IncPricingRule(rule string) {
	if rule == "" {
		rule = "unknown"
	}
	if pricingRuleTotal != nil {
		pricingRuleTotal.WithLabelValues(rule).Inc()
	}
}

// IncPricingUpdate counts a pricing setting update.
func IncPricingUpdate(result string) {
	if result == "" {
		result = resultSuccess
	}
	if pricingUpdateTotal != nil {
		pricingUpdateTotal.WithLabelValues(result).Inc()
	}
}

// IncProcedureOp counts a procedure ledger operation.
func IncProcedureOp(op, result string) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if procedureOpsTotal != nil {
		procedureOpsTotal.WithLabelValues(op, result).Inc()
	}
}

// ObserveSettlement records settlement latency and result.
func ObserveSettlement(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementTotal != nil {
		settlementTotal.WithLabelValues(result).Inc()
	}
	if settlementLatency != nil {
		settlementLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveSettlementItems records the size of a settled batch.
func ObserveSettlementItems(count int) {
	if count <= 0 {
		return
	}
	if settlementItems != nil {
		settlementItems.Observe(float64(count))
	}
}

// IncBatchVoid counts a payout batch void.
func IncBatchVoid(result string) {
	if result == "" {
		result = resultSuccess
	}
	if batchVoidTotal != nil {
		batchVoidTotal.WithLabelValues(result).Inc()
	}
}

// ObserveVoucherExport records export latency and result.
func ObserveVoucherExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if voucherExportTotal != nil {
		voucherExportTotal.WithLabelValues(format, result).Inc()
	}
	if voucherExportLatency != nil {
		voucherExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultStale   = resultStale
)
