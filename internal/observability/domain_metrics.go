package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlsight_questions_total",
			Help: "Total number of questions answered, by outcome.",
		},
		[]string{"outcome"},
	)
	chartsServedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlsight_charts_served_total",
			Help: "Total number of chart payloads served, by chart type.",
		},
		[]string{"chart_type"},
	)
	translationLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlsight_translation_latency_seconds",
			Help:    "Latency of natural language to SQL translation calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider", "status"},
	)
	warehouseQueryLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlsight_warehouse_query_latency_seconds",
			Help:    "Latency of SQL statements executed against the warehouse.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
	sqlCorrectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlsight_sql_corrections_total",
			Help: "Total number of SQL regeneration attempts after a database error.",
		},
	)
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlsight_cache_lookups_total",
			Help: "Total number of cache lookups, by cache and result.",
		},
		[]string{"cache", "result"},
	)
	importRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlsight_import_rows_total",
			Help: "Total number of dataset rows processed by the importer, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		chartsServedTotal,
		translationLatencySeconds,
		warehouseQueryLatencySeconds,
		sqlCorrectionsTotal,
		cacheLookupsTotal,
		importRowsTotal,
	)
}

// ObserveQuestion records the outcome of one question: answered, empty,
// rejected, failed or cached.
func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveChartServed(chartType string) {
	chartsServedTotal.WithLabelValues(chartType).Inc()
}

func ObserveTranslation(provider string, elapsed time.Duration, err error) {
	translationLatencySeconds.WithLabelValues(provider, statusLabel(err)).Observe(elapsed.Seconds())
}

func ObserveWarehouseQuery(elapsed time.Duration, err error) {
	warehouseQueryLatencySeconds.WithLabelValues(statusLabel(err)).Observe(elapsed.Seconds())
}

func IncrementSQLCorrection() {
	sqlCorrectionsTotal.Inc()
}

func ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

func ObserveImportRows(imported, skipped int) {
	if imported > 0 {
		importRowsTotal.WithLabelValues("imported").Add(float64(imported))
	}
	if skipped > 0 {
		importRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
