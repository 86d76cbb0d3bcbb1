package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agriflow"

var (
	// ─── Irrigation ──────────────────────────────────────────────────────────────

	IrrigationExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "irrigation",
		Name:      "executions_total",
		Help:      "Irrigation execution attempts, labelled by outcome (completed, rescheduled, failed).",
	}, []string{"outcome"})

	IrrigationInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "irrigation",
		Name:      "inflight",
		Help:      "Irrigations whose actuator call is currently running.",
	})

	IrrigationActuatorSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "irrigation",
		Name:      "actuator_duration_seconds",
		Help:      "Time spent in the hardware activation call.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	IrrigationPostponed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "irrigation",
		Name:      "postponed_total",
		Help:      "Irrigations pushed back because of rain.",
	})

	IrrigationOverdueFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "irrigation",
		Name:      "overdue_failed_total",
		Help:      "Irrigations failed by the overdue sweep.",
	})

	// ─── Fertilization ───────────────────────────────────────────────────────────

	FertilizationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fertilization",
		Name:      "transitions_total",
		Help:      "Fertilization status changes, labelled by the new status.",
	}, []string{"status"})

	// ─── Auto-schedule ───────────────────────────────────────────────────────────

	AutoScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "autoschedule",
		Name:      "created_total",
		Help:      "Tasks created by the generator, labelled by kind.",
	}, []string{"kind"})

	// ─── Weather ─────────────────────────────────────────────────────────────────

	WeatherChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "weather",
		Name:      "checks_total",
		Help:      "Weather gate decisions, labelled by result (proceed, skip, error, throttled).",
	}, []string{"result"})

	// ─── Notifications ───────────────────────────────────────────────────────────

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Notification deliveries, labelled by channel and result (ok, error).",
	}, []string{"channel", "result"})

	RelayedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "relayed_events_total",
		Help:      "Events consumed from the bus by the notifier, labelled by kind and result (delivered, dead_lettered, rate_limited).",
	}, []string{"kind", "result"})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of a scheduler tick.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
	}, []string{"tick"})

	TicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "ticks_skipped_total",
		Help:      "Tick firings suppressed because the previous tick of the same kind was still running.",
	}, []string{"tick"})

	TaskErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "task_errors_total",
		Help:      "Per-task errors caught and isolated inside a tick.",
	}, []string{"tick"})
)
