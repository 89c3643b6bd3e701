package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pagebot_events_received_total",
	Help: "Inbound events by tenant and kind",
}, []string{"tenant", "kind"})

var AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pagebot_admission_decisions_total",
	Help: "Admission outcomes; reason is ADMIT for admitted events",
}, []string{"tenant", "reason"})

var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pagebot_tasks_completed_total",
	Help: "Tasks that left the queue, by type and outcome",
}, []string{"tenant", "type", "outcome"})

var TaskLag = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pagebot_task_lag_seconds",
	Help:    "Delay between a task's due time and its start",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
}, []string{"tenant", "type"})

var QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "pagebot_queue_depth",
	Help: "Tasks waiting in a tenant's queue",
}, []string{"tenant"})

var InFlightItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "pagebot_inflight_items",
	Help: "Admitted items with tasks still pending",
}, []string{"tenant"})

var GraphCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pagebot_graph_calls_total",
	Help: "Graph API calls by operation and status",
}, []string{"op", "status"})

var GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pagebot_generation_failures_total",
	Help: "Text generation attempts that produced nothing usable",
})

var KillSwitchEngaged = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pagebot_kill_switch_engaged",
	Help: "1 while the kill switch is engaged",
})

var StreamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pagebot_stream_messages_total",
	Help: "Intake stream messages by result",
}, []string{"result"})
