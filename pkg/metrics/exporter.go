package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(RecordsPushed, BytesPushed, PushErrors, PushLatency, PartRotations, ActivePartRecords)
	prometheus.MustRegister(RecordsPopped, ConsumerBacklog, PartsSwept)
}

func StartMetricsServer(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		fmt.Println("[METRICS] Prometheus exporter listening on", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("[METRICS] Failed to start metrics server: %v\n", err)
		}
	}()
}

// ObservePush updates the push-side metrics for one successful append.
func ObservePush(queue string, bodyBytes int, elapsedSeconds float64) {
	RecordsPushed.WithLabelValues(queue).Inc()
	BytesPushed.WithLabelValues(queue).Add(float64(bodyBytes))
	PushLatency.WithLabelValues(queue).Observe(elapsedSeconds)
}

// ObservePop updates the consumer-side metrics for one committed pop.
func ObservePop(queue, consumer string) {
	RecordsPopped.WithLabelValues(queue, consumer).Inc()
}
