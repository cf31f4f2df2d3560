package jobqueue

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports queue depth gauges on scrape
type Collector struct {
	queue *Queue
	depth *prometheus.Desc
	total *prometheus.Desc
}

// NewCollector creates a Prometheus collector for q
func NewCollector(q *Queue) *Collector {
	return &Collector{
		queue: q,
		depth: prometheus.NewDesc(
			"sms_queue_jobs",
			"Jobs currently in each sms-parse queue state",
			[]string{"state"}, nil,
		),
		total: prometheus.NewDesc(
			"sms_queue_jobs_total",
			"Lifetime sms-parse job counters",
			[]string{"event"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.total
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ov, err := c.queue.Overview(ctx)
	if err != nil {
		c.queue.logger.Printf("jobqueue: metrics overview: %v", err)
		return
	}

	for state, v := range map[JobStatus]int64{
		JobStatusWaiting:   ov.Waiting,
		JobStatusActive:    ov.Active,
		JobStatusDelayed:   ov.Delayed,
		JobStatusCompleted: ov.Completed,
		JobStatusFailed:    ov.Failed,
	} {
		ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(v), string(state))
	}
	for event, v := range ov.Totals {
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(v), event)
	}
}
