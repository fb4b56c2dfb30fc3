// Copyright 2024 TernDB Corp. All rights reserved.
package tern

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	NopStatsClient = &nopStatsClient{}
}

// StatsClient represents a client to a stats server.
type StatsClient interface {
	// Returns a new client with additional tags appended.
	WithTags(tags ...string) StatsClient

	// Tracks the number of times something occurs.
	Count(name string, value int64)

	// Sets the value of a metric.
	Gauge(name string, value float64)

	// Tracks timing information for a metric.
	Timing(name string, value time.Duration)
}

// NopStatsClient represents a StatsClient that doesn't do anything.
var NopStatsClient StatsClient

type nopStatsClient struct{}

func (c *nopStatsClient) WithTags(tags ...string) StatsClient   { return c }
func (c *nopStatsClient) Count(name string, value int64)        {}
func (c *nopStatsClient) Gauge(name string, value float64)      {}
func (c *nopStatsClient) Timing(name string, value time.Duration) {}

// prometheusStatsClient publishes stats through a prometheus registerer.
// Metric families are created lazily by name; tags become the "tags" label.
type prometheusStatsClient struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	tags       []string
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusStatsClient returns a StatsClient registering metrics with
// r. Pass prometheus.DefaultRegisterer in production.
func NewPrometheusStatsClient(r prometheus.Registerer) StatsClient {
	return &prometheusStatsClient{
		registerer: r,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (c *prometheusStatsClient) WithTags(tags ...string) StatsClient {
	merged := make([]string, 0, len(c.tags)+len(tags))
	merged = append(merged, c.tags...)
	merged = append(merged, tags...)
	return &prometheusStatsClient{
		registerer: c.registerer,
		tags:       merged,
		counters:   c.counters,
		gauges:     c.gauges,
		histograms: c.histograms,
	}
}

func (c *prometheusStatsClient) tagValue() string {
	out := ""
	for i, t := range c.tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

func (c *prometheusStatsClient) Count(name string, value int64) {
	c.mu.Lock()
	cv, ok := c.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tern",
			Name:      name,
		}, []string{"tags"})
		c.registerer.MustRegister(cv)
		c.counters[name] = cv
	}
	c.mu.Unlock()
	cv.WithLabelValues(c.tagValue()).Add(float64(value))
}

func (c *prometheusStatsClient) Gauge(name string, value float64) {
	c.mu.Lock()
	gv, ok := c.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tern",
			Name:      name,
		}, []string{"tags"})
		c.registerer.MustRegister(gv)
		c.gauges[name] = gv
	}
	c.mu.Unlock()
	gv.WithLabelValues(c.tagValue()).Set(value)
}

func (c *prometheusStatsClient) Timing(name string, value time.Duration) {
	c.mu.Lock()
	hv, ok := c.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tern",
			Name:      name,
		}, []string{"tags"})
		c.registerer.MustRegister(hv)
		c.histograms[name] = hv
	}
	c.mu.Unlock()
	hv.WithLabelValues(c.tagValue()).Observe(value.Seconds())
}
