package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func registerDBMetrics(db *sql.DB, logger logrus.FieldLogger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "procedures_pending",
			Help: "Procedures waiting for settlement",
		},
		func() float64 {
			return queryFloat(db, logger, "SELECT COUNT(*) FROM procedures WHERE status = 'pending'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "procedures_pending_amount",
			Help: "Sum of calculated amounts for pending procedures",
		},
		func() float64 {
			return queryFloat(db, logger, "SELECT COALESCE(SUM(calculated_amount), 0)::float8 FROM procedures WHERE status = 'pending'")
		},
	))
}

func queryFloat(db *sql.DB, logger logrus.FieldLogger, query string) float64 {
	if db == nil {
		return 0
	}
	var value float64
	if err := db.QueryRow(query).Scan(&value); err != nil {
		if logger != nil {
			logger.WithError(err).Warn("metrics query failed")
		}
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}
