// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import "net/http"

// noopMetrics is the default backend; it hands out meters that discard
// every observation.
type noopMetrics struct{}

func (noopMetrics) NewCounter(string) CountMeter                   { return noopMeter{} }
func (noopMetrics) NewCounterVec(string, []string) CountVecMeter   { return noopMeter{} }
func (noopMetrics) NewGauge(string) GaugeMeter                     { return noopMeter{} }
func (noopMetrics) NewGaugeVec(string, []string) GaugeVecMeter     { return noopMeter{} }
func (noopMetrics) NewHistogram(string, []int64) HistogramMeter    { return noopMeter{} }
func (noopMetrics) Handler() http.Handler                          { return http.NotFoundHandler() }

func (noopMetrics) NewHistogramVec(string, []string, []int64) HistogramVecMeter {
	return noopMeter{}
}

type noopMeter struct{}

func (noopMeter) Add(int64)                                  {}
func (noopMeter) Set(int64)                                  {}
func (noopMeter) Observe(int64)                              {}
func (noopMeter) AddWithLabel(int64, map[string]string)      {}
func (noopMeter) SetWithLabel(int64, map[string]string)      {}
func (noopMeter) ObserveWithLabels(int64, map[string]string) {}
