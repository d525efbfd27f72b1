// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopMeters(t *testing.T) {
	service = noopMetrics{}

	// observations before initialization go nowhere and never panic
	Counter("noop_count").Add(1)
	CounterVec("noop_count_vec", []string{"a"}).AddWithLabel(1, map[string]string{"nonsense": "label"})
	Gauge("noop_gauge").Set(42)
	GaugeVec("noop_gauge_vec", []string{"a"}).SetWithLabel(42, nil)
	Histogram("noop_hist", nil).Observe(7)
	HistogramVec("noop_hist_vec", []string{"a"}, nil).ObserveWithLabels(7, nil)
}

func TestNoopHandler(t *testing.T) {
	service = noopMetrics{}

	server := httptest.NewServer(HTTPHandler())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
