// metrics.go: Prometheus collectors for queues, settings and watchers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueSource is the read side of a queue needed for metrics. Every
// *Queue[T] satisfies it.
type QueueSource interface {
	Len() int
	Cap() int
	MaxSize() int
	Dropped() int64
}

// QueueCollector exports the state of a queue. Values are read at scrape
// time, so the collector adds no cost to Push or Take.
type QueueCollector struct {
	queue QueueSource

	length   *prometheus.Desc
	capacity *prometheus.Desc
	maxSize  *prometheus.Desc
	dropped  *prometheus.Desc
}

// NewQueueCollector returns a collector for q. name becomes the "queue"
// label, so several queues can share a registry.
func NewQueueCollector(name string, q QueueSource) *QueueCollector {
	labels := prometheus.Labels{"queue": name}
	return &QueueCollector{
		queue: q,
		length: prometheus.NewDesc("hestia_queue_length",
			"Number of elements waiting in the queue.", nil, labels),
		capacity: prometheus.NewDesc("hestia_queue_capacity",
			"Number of allocated queue slots.", nil, labels),
		maxSize: prometheus.NewDesc("hestia_queue_max_size",
			"Maximum number of elements the queue holds.", nil, labels),
		dropped: prometheus.NewDesc("hestia_queue_dropped_total",
			"Elements discarded because the queue was full.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.length
	ch <- c.capacity
	ch <- c.maxSize
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.length, prometheus.GaugeValue, float64(c.queue.Len()))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(c.queue.Cap()))
	ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(c.queue.MaxSize()))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.queue.Dropped()))
}

// SettingsCollector exports the size of a settings store and its failure
// counters.
type SettingsCollector struct {
	sm *SettingsManager

	entries          *prometheus.Desc
	cached           *prometheus.Desc
	restrictions     *prometheus.Desc
	callbackFailures *prometheus.Desc
	rejectedSets     *prometheus.Desc
}

// NewSettingsCollector returns a collector for sm labelled with its file.
func NewSettingsCollector(sm *SettingsManager) *SettingsCollector {
	labels := prometheus.Labels{"file": sm.FilePath()}
	return &SettingsCollector{
		sm: sm,
		entries: prometheus.NewDesc("hestia_settings_entries",
			"Number of stored settings.", nil, labels),
		cached: prometheus.NewDesc("hestia_settings_cached_values",
			"Number of cached typed conversions.", nil, labels),
		restrictions: prometheus.NewDesc("hestia_settings_restrictions",
			"Number of keys with allowed-value restrictions.", nil, labels),
		callbackFailures: prometheus.NewDesc("hestia_settings_callback_failures_total",
			"Change callbacks that returned an error or panicked.", nil, labels),
		rejectedSets: prometheus.NewDesc("hestia_settings_rejected_sets_total",
			"Values refused by an allowed-value restriction.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *SettingsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.cached
	ch <- c.restrictions
	ch <- c.callbackFailures
	ch <- c.rejectedSets
}

// Collect implements prometheus.Collector.
func (c *SettingsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.sm.Stats()
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(c.cached, prometheus.GaugeValue, float64(s.CachedValues))
	ch <- prometheus.MustNewConstMetric(c.restrictions, prometheus.GaugeValue, float64(s.Restrictions))
	ch <- prometheus.MustNewConstMetric(c.callbackFailures, prometheus.CounterValue, float64(s.CallbackFailures))
	ch <- prometheus.MustNewConstMetric(c.rejectedSets, prometheus.CounterValue, float64(s.RejectedSets))
}

// RegisterWatcherMetrics registers collectors for a watcher's event queue
// and delivery counters with reg.
func RegisterWatcherMetrics(reg prometheus.Registerer, w *Watcher) error {
	if err := reg.Register(NewQueueCollector("watcher_events", w.Events())); err != nil {
		return err
	}
	delivered := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "hestia_watcher_events_delivered_total",
		Help: "Change events handed to watch callbacks.",
	}, func() float64 { return float64(w.Delivered()) })
	panics := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "hestia_watcher_callback_panics_total",
		Help: "Watch callbacks that panicked.",
	}, func() float64 { return float64(w.Panics()) })
	if err := reg.Register(delivered); err != nil {
		return err
	}
	return reg.Register(panics)
}
