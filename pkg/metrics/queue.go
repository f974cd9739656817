package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RecordsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partq_records_pushed_total",
		Help: "Total number of records appended per queue",
	}, []string{"queue"})

	BytesPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partq_bytes_pushed_total",
		Help: "Total body bytes appended per queue",
	}, []string{"queue"})

	PushErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partq_push_errors_total",
		Help: "Total failed push attempts per queue",
	}, []string{"queue"})

	PushLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "partq_push_duration_seconds",
		Help:    "Histogram of push latency including flush and sync",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})

	PartRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partq_part_rotations_total",
		Help: "Total part rotations per queue",
	}, []string{"queue"})

	ActivePartRecords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "partq_active_part_records",
		Help: "Records in the active part of each queue",
	}, []string{"queue"})

	RecordsPopped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partq_records_popped_total",
		Help: "Total committed pops per queue and consumer",
	}, []string{"queue", "consumer"})

	ConsumerBacklog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "partq_consumer_backlog_records",
		Help: "Records available but not yet committed per queue and consumer",
	}, []string{"queue", "consumer"})

	PartsSwept = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partq_parts_swept_total",
		Help: "Parts removed or archived by the retention sweep",
	}, []string{"queue", "policy"})
)
