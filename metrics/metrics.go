// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package metrics exposes process wide meters behind a small facade.
// The default implementation discards everything; calling
// InitializePrometheusMetrics switches the facade to prometheus backed
// meters. Meters created before the switch keep their no-op
// implementation, so package level meters go through the LazyLoad
// helpers and resolve on first use.
package metrics

import (
	"net/http"
	"sync"
)

// service is the active meter factory.
var service Metrics = noopMetrics{}

// Metrics creates meters; one implementation per backend.
type Metrics interface {
	NewCounter(name string) CountMeter
	NewCounterVec(name string, labels []string) CountVecMeter
	NewGauge(name string) GaugeMeter
	NewGaugeVec(name string, labels []string) GaugeVecMeter
	NewHistogram(name string, buckets []int64) HistogramMeter
	NewHistogramVec(name string, labels []string, buckets []int64) HistogramVecMeter
	Handler() http.Handler
}

// HTTPHandler returns the handler serving the metrics endpoint.
func HTTPHandler() http.Handler {
	return service.Handler()
}

// BucketCostUnits covers per-transaction cost unit consumption,
// expressed in thousands of cost units.
var BucketCostUnits = []int64{
	0, 1, 2, 5, 10, 20, 50, 100, 200, 500,
	1000, 2000, 5000, 10_000, 20_000, 50_000, 100_000,
}

// CountMeter is a monotonically increasing counter.
type CountMeter interface {
	Add(int64)
}

// CountVecMeter is a labeled counter.
type CountVecMeter interface {
	AddWithLabel(int64, map[string]string)
}

// GaugeMeter is a value that can go up and down.
type GaugeMeter interface {
	Add(int64)
	Set(int64)
}

// GaugeVecMeter is a labeled gauge.
type GaugeVecMeter interface {
	AddWithLabel(int64, map[string]string)
	SetWithLabel(int64, map[string]string)
}

// HistogramMeter aggregates observations into buckets.
type HistogramMeter interface {
	Observe(int64)
}

// HistogramVecMeter is a labeled histogram.
type HistogramVecMeter interface {
	ObserveWithLabels(int64, map[string]string)
}

func Counter(name string) CountMeter { return service.NewCounter(name) }

func CounterVec(name string, labels []string) CountVecMeter {
	return service.NewCounterVec(name, labels)
}

func Gauge(name string) GaugeMeter { return service.NewGauge(name) }

func GaugeVec(name string, labels []string) GaugeVecMeter {
	return service.NewGaugeVec(name, labels)
}

func Histogram(name string, buckets []int64) HistogramMeter {
	return service.NewHistogram(name, buckets)
}

func HistogramVec(name string, labels []string, buckets []int64) HistogramVecMeter {
	return service.NewHistogramVec(name, labels, buckets)
}

// LazyLoad defers meter creation to first use, so package level meter
// variables pick up the backend active at that time rather than the
// one active at init.
func LazyLoad[T any](f func() T) func() T {
	var (
		once   sync.Once
		result T
	)
	return func() T {
		once.Do(func() { result = f() })
		return result
	}
}

func LazyLoadCounter(name string) func() CountMeter {
	return LazyLoad(func() CountMeter { return Counter(name) })
}

func LazyLoadCounterVec(name string, labels []string) func() CountVecMeter {
	return LazyLoad(func() CountVecMeter { return CounterVec(name, labels) })
}

func LazyLoadGauge(name string) func() GaugeMeter {
	return LazyLoad(func() GaugeMeter { return Gauge(name) })
}

func LazyLoadGaugeVec(name string, labels []string) func() GaugeVecMeter {
	return LazyLoad(func() GaugeVecMeter { return GaugeVec(name, labels) })
}

func LazyLoadHistogram(name string, buckets []int64) func() HistogramMeter {
	return LazyLoad(func() HistogramMeter { return Histogram(name, buckets) })
}

func LazyLoadHistogramVec(name string, labels []string, buckets []int64) func() HistogramVecMeter {
	return LazyLoad(func() HistogramVecMeter { return HistogramVec(name, labels, buckets) })
}
