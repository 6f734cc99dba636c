// Package metrics exports cache statistics as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/shmcache/internal/logger"
	"github.com/viant/shmcache/model"
)

// Source provides cache stats
type Source interface {
	Stats(ctx context.Context) (*model.Stats, error)
}

const (
	descEntries = iota
	descSegments
	descBytes
	descMaxBytes
	descQueueDepth
	descQueueCapacity
	descInflight
	descDeadLetters
	descTrackerUp
	descMessages
	descOperations
	descBytesWritten
)

var descriptors = []*prometheus.Desc{
	descEntries: prometheus.NewDesc(
		"shmcache_entries",
		"Number of registered cache entries.",
		[]string{"instance"}, nil,
	),
	descSegments: prometheus.NewDesc(
		"shmcache_segments",
		"Number of live shared memory segments.",
		[]string{"instance"}, nil,
	),
	descBytes: prometheus.NewDesc(
		"shmcache_bytes",
		"Aggregate size of live segments in bytes.",
		[]string{"instance"}, nil,
	),
	descMaxBytes: prometheus.NewDesc(
		"shmcache_max_bytes",
		"Configured segment size limit in bytes, 0 if unbounded.",
		[]string{"instance"}, nil,
	),
	descQueueDepth: prometheus.NewDesc(
		"shmcache_queue_depth",
		"Messages waiting for the tracker.",
		[]string{"instance"}, nil,
	),
	descQueueCapacity: prometheus.NewDesc(
		"shmcache_queue_capacity",
		"Bound of the inbound queue.",
		[]string{"instance"}, nil,
	),
	descInflight: prometheus.NewDesc(
		"shmcache_inflight",
		"Messages consumed by the tracker and not yet reported.",
		[]string{"instance"}, nil,
	),
	descDeadLetters: prometheus.NewDesc(
		"shmcache_dead_letters_total",
		"Messages that failed or were dropped.",
		[]string{"instance"}, nil,
	),
	descTrackerUp: prometheus.NewDesc(
		"shmcache_tracker_up",
		"1 if the tracker is running.",
		[]string{"instance", "state"}, nil,
	),
	descMessages: prometheus.NewDesc(
		"shmcache_messages_total",
		"Messages by stage.",
		[]string{"instance", "stage"}, nil,
	),
	descOperations: prometheus.NewDesc(
		"shmcache_operations_total",
		"Successfully applied mutations by action.",
		[]string{"instance", "action"}, nil,
	),
	descBytesWritten: prometheus.NewDesc(
		"shmcache_bytes_written_total",
		"Payload bytes copied into segments.",
		[]string{"instance"}, nil,
	),
}

// Collector implements prometheus.Collector over a stats source
type Collector struct {
	source  Source
	timeout time.Duration
}

// NewCollector creates a collector
func NewCollector(source Source) *Collector {
	return &Collector{source: source, timeout: 2 * time.Second}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range descriptors {
		ch <- desc
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	stats, err := c.source.Stats(ctx)
	if err != nil {
		logger.Get("metrics").Warnf("failed to collect cache stats: %v", err)
		return
	}
	for _, metric := range Metrics(stats) {
		ch <- metric
	}
}

// Metrics converts stats to const metrics
func Metrics(stats *model.Stats) []prometheus.Metric {
	if stats == nil {
		return nil
	}
	id := stats.InstanceID
	up := 0.0
	if stats.TrackerState == model.TrackerRunning {
		up = 1
	}
	counters := stats.Counters
	gauge := func(desc int, value float64, labels ...string) prometheus.Metric {
		return prometheus.MustNewConstMetric(descriptors[desc], prometheus.GaugeValue, value, append([]string{id}, labels...)...)
	}
	counter := func(desc int, value float64, labels ...string) prometheus.Metric {
		return prometheus.MustNewConstMetric(descriptors[desc], prometheus.CounterValue, value, append([]string{id}, labels...)...)
	}
	return []prometheus.Metric{
		gauge(descEntries, float64(stats.Entries)),
		gauge(descSegments, float64(stats.Segments)),
		gauge(descBytes, float64(stats.Bytes)),
		gauge(descMaxBytes, float64(stats.MaxBytes)),
		gauge(descQueueDepth, float64(stats.QueueDepth)),
		gauge(descQueueCapacity, float64(stats.QueueCapacity)),
		gauge(descInflight, float64(stats.Inflight)),
		counter(descDeadLetters, float64(stats.DeadLetters)),
		gauge(descTrackerUp, up, string(stats.TrackerState)),
		counter(descMessages, float64(counters.Published), "published"),
		counter(descMessages, float64(counters.Processed), "processed"),
		counter(descMessages, float64(counters.Failed), "failed"),
		counter(descOperations, float64(counters.Puts), "put"),
		counter(descOperations, float64(counters.Replaces), "replace"),
		counter(descOperations, float64(counters.Removes), "remove"),
		counter(descBytesWritten, float64(counters.BytesWritten)),
	}
}
