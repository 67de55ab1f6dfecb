package infra

import (
	"context"

	"crm-sync-gateway/crmsync/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "crmsync"

// PrometheusStats expõe os resultados dos jobs como contador
// crmsync_jobs_total{target, operation, outcome}.
type PrometheusStats struct {
	jobs *prometheus.CounterVec
}

func NewPrometheusStats() *PrometheusStats {
	return &PrometheusStats{
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: metricsSubsystem,
				Name:      "jobs_total",
				Help:      "Count of sync job executions by target, operation and outcome.",
			},
			[]string{"target", "operation", "outcome"},
		),
	}
}

// Register registra os coletores em reg (ex: prometheus.DefaultRegisterer).
func (p *PrometheusStats) Register(reg prometheus.Registerer) error {
	return reg.Register(p.jobs)
}

func (p *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	p.jobs.WithLabelValues(ev.Target, string(ev.Operation), string(ev.Outcome)).Inc()
	return nil
}
