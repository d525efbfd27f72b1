// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

//go:build linux

package metrics

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// procIOFields maps /proc/self/io field names to the exported metric
// names. The default ProcessCollector covers CPU, memory and FDs but
// not I/O, which is what drives the substate store, so these fill the
// gap. See proc_pid_io(5).
var procIOFields = map[string]string{
	"syscr":       "io_read_syscalls_total",
	"syscw":       "io_write_syscalls_total",
	"read_bytes":  "io_read_bytes_total",
	"write_bytes": "io_write_bytes_total",
}

// procIOCollector exports the process I/O counters from /proc/self/io.
type procIOCollector struct {
	descs map[string]*prometheus.Desc // /proc field name -> desc
}

func newProcIOCollector() *procIOCollector {
	descs := make(map[string]*prometheus.Desc, len(procIOFields))
	for field, metric := range procIOFields {
		descs[field] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "process", metric),
			"Process I/O counter "+field+" from /proc/self/io.",
			nil, nil,
		)
	}
	return &procIOCollector{descs: descs}
}

// Describe implements prometheus.Collector.
func (c *procIOCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *procIOCollector) Collect(ch chan<- prometheus.Metric) {
	for field, value := range readProcIO() {
		ch <- prometheus.MustNewConstMetric(c.descs[field], prometheus.CounterValue, value)
	}
}

// readProcIO parses /proc/self/io into the fields named by
// procIOFields. An unreadable or malformed file yields whatever parsed
// cleanly; collection is best effort.
func readProcIO() map[string]float64 {
	file, err := os.Open("/proc/self/io")
	if err != nil {
		logger.Warn("unable to read process io stats", "err", err)
		return nil
	}
	defer file.Close()

	out := make(map[string]float64, len(procIOFields))
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		name := strings.TrimSuffix(fields[0], ":")
		if _, wanted := procIOFields[name]; !wanted {
			continue
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			logger.Warn("unable to parse io value", "field", name, "err", err)
			continue
		}
		out[name] = value
	}
	return out
}

var ioCollectorRegistered atomic.Bool

// registerIOCollector registers the I/O collector once per process.
func registerIOCollector() {
	if ioCollectorRegistered.CompareAndSwap(false, true) {
		prometheus.MustRegister(newProcIOCollector())
	}
}
