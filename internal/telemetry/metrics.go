package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsDispatched    = prometheus.NewCounter(prometheus.CounterOpts{Name: "gpuq_jobs_dispatched_total", Help: "Jobs launched on a device"})
	JobsCompleted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "gpuq_jobs_completed_total", Help: "Jobs that exited with code 0"})
	JobsFailed        = prometheus.NewCounter(prometheus.CounterOpts{Name: "gpuq_jobs_failed_total", Help: "Jobs that exited nonzero or disappeared"})
	LedgerParseErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "gpuq_ledger_parse_errors_total", Help: "Malformed ledger lines skipped on load"})
	PendingGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "gpuq_jobs_pending", Help: "Pending jobs at the last cycle"})
	RunningGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "gpuq_jobs_running", Help: "Running jobs at the last cycle"})
	DeviceFreeMem     = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "gpuq_device_free_mem_mb", Help: "Free memory per device at the last snapshot"}, []string{"device"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsDispatched,
			JobsCompleted,
			JobsFailed,
			LedgerParseErrors,
			PendingGauge,
			RunningGauge,
			DeviceFreeMem,
		)
	})
	return promhttp.Handler()
}
