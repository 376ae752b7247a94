package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by the lifecycle hooks.
type Metrics struct {
	TasksInFlight prometheus.Gauge
	Tasks         *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	Passes        *prometheus.CounterVec
	Drains        *prometheus.CounterVec
	Commands      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_tasks_in_flight",
			Help: "Number of tasks currently being processed",
		}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_tasks_total",
			Help: "Total number of finished tasks",
		}, []string{"outcome"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conductor_task_duration_seconds",
			Help:    "Duration of task processing",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"outcome"}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_passes_total",
			Help: "Total number of passes over the loaded workflows",
		}, []string{"changed"}),
		Drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_drains_total",
			Help: "Total number of command drains",
		}, []string{"drained"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_commands_total",
			Help: "Total number of commands queued on channels",
		}, []string{"channel", "command"}),
	}

	for _, c := range []prometheus.Collector{m.TasksInFlight, m.Tasks, m.TaskDuration, m.Passes, m.Drains, m.Commands} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskStart: func(ctx context.Context, e *domain.TaskEvent) {
			m.TasksInFlight.Inc()
		},
		OnTaskFinish: func(ctx context.Context, e *domain.TaskEvent) {
			m.TasksInFlight.Dec()
			m.Tasks.WithLabelValues(e.Outcome).Inc()
			m.TaskDuration.WithLabelValues(e.Outcome).Observe(e.Duration.Seconds())
		},
		OnPass: func(ctx context.Context, e *domain.PassEvent) {
			m.Passes.WithLabelValues(strconv.FormatBool(e.Changed)).Inc()
		},
		OnDrain: func(ctx context.Context, e *domain.DrainEvent) {
			m.Drains.WithLabelValues(strconv.FormatBool(e.Drained)).Inc()
		},
		OnCommand: func(ctx context.Context, e *domain.CommandEvent) {
			m.Commands.WithLabelValues(e.Channel, e.Command).Inc()
		},
	}
}
