// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"sync"

	"github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kestrel_metrics"

var logger = log15.New("pkg", "metrics")

// InitializePrometheusMetrics switches the facade to prometheus backed
// meters and registers the process IO collector. Once switched it
// cannot be switched back.
func InitializePrometheusMetrics() {
	if _, ok := service.(*promMetrics); ok {
		return
	}
	service = &promMetrics{}
	registerIOCollector()
}

// promMetrics builds prometheus meters, at most one per kind and name.
type promMetrics struct {
	meters sync.Map
}

func (p *promMetrics) meter(kind, name string, create func() any) any {
	key := kind + "/" + name
	if m, ok := p.meters.Load(key); ok {
		return m
	}
	m, _ := p.meters.LoadOrStore(key, create())
	return m
}

func register(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		logger.Warn("unable to register metric", "err", err)
	}
}

func floatBuckets(buckets []int64) []float64 {
	out := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, float64(b))
	}
	return out
}

func (p *promMetrics) NewCounter(name string) CountMeter {
	return p.meter("counter", name, func() any {
		m := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
		})
		register(m)
		return &promCountMeter{m}
	}).(CountMeter)
}

func (p *promMetrics) NewCounterVec(name string, labels []string) CountVecMeter {
	return p.meter("counterVec", name, func() any {
		m := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
		}, labels)
		register(m)
		return &promCountVecMeter{m}
	}).(CountVecMeter)
}

func (p *promMetrics) NewGauge(name string) GaugeMeter {
	return p.meter("gauge", name, func() any {
		m := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
		})
		register(m)
		return &promGaugeMeter{m}
	}).(GaugeMeter)
}

func (p *promMetrics) NewGaugeVec(name string, labels []string) GaugeVecMeter {
	return p.meter("gaugeVec", name, func() any {
		m := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
		}, labels)
		register(m)
		return &promGaugeVecMeter{m}
	}).(GaugeVecMeter)
}

func (p *promMetrics) NewHistogram(name string, buckets []int64) HistogramMeter {
	return p.meter("histogram", name, func() any {
		m := prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Buckets:   floatBuckets(buckets),
		})
		register(m)
		return &promHistogramMeter{m}
	}).(HistogramMeter)
}

func (p *promMetrics) NewHistogramVec(name string, labels []string, buckets []int64) HistogramVecMeter {
	return p.meter("histogramVec", name, func() any {
		m := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Buckets:   floatBuckets(buckets),
		}, labels)
		register(m)
		return &promHistogramVecMeter{m}
	}).(HistogramVecMeter)
}

func (p *promMetrics) Handler() http.Handler {
	return promhttp.Handler()
}

type promCountMeter struct {
	counter prometheus.Counter
}

func (m *promCountMeter) Add(i int64) { m.counter.Add(float64(i)) }

type promCountVecMeter struct {
	counter *prometheus.CounterVec
}

func (m *promCountVecMeter) AddWithLabel(i int64, labels map[string]string) {
	m.counter.With(labels).Add(float64(i))
}

type promGaugeMeter struct {
	gauge prometheus.Gauge
}

func (m *promGaugeMeter) Add(i int64) { m.gauge.Add(float64(i)) }
func (m *promGaugeMeter) Set(i int64) { m.gauge.Set(float64(i)) }

type promGaugeVecMeter struct {
	gauge *prometheus.GaugeVec
}

func (m *promGaugeVecMeter) AddWithLabel(i int64, labels map[string]string) {
	m.gauge.With(labels).Add(float64(i))
}

func (m *promGaugeVecMeter) SetWithLabel(i int64, labels map[string]string) {
	m.gauge.With(labels).Set(float64(i))
}

type promHistogramMeter struct {
	histogram prometheus.Histogram
}

func (m *promHistogramMeter) Observe(i int64) { m.histogram.Observe(float64(i)) }

type promHistogramVecMeter struct {
	histogram *prometheus.HistogramVec
}

func (m *promHistogramVecMeter) ObserveWithLabels(i int64, labels map[string]string) {
	m.histogram.With(labels).Observe(float64(i))
}
