// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

//go:build linux

package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadProcIO(t *testing.T) {
	stats := readProcIO()
	require.NotEmpty(t, stats)
	for field := range stats {
		require.Contains(t, procIOFields, field)
	}
	// the counters exist for every process
	require.Contains(t, stats, "syscr")
	require.Contains(t, stats, "syscw")
}

func TestProcIOCollectorGather(t *testing.T) {
	InitializePrometheusMetrics()

	families := gather(t)
	for _, metric := range procIOFields {
		require.Contains(t, families, namespace+"_process_"+metric)
	}
}
