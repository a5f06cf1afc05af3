// Package prometheus exposes engine counters as a Prometheus collector.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axiohq/credcore/internal/metrics"
)

// Source is anything that can produce a counter snapshot. The engine
// satisfies it.
type Source interface {
	MetricsSnapshot() map[metrics.ID]uint64
}

// Exporter adapts a Source to the prometheus.Collector interface. Counters
// are read at scrape time; no background collection runs.
type Exporter struct {
	source Source
	descs  map[metrics.ID]*prometheus.Desc
}

func NewExporter(source Source) *Exporter {
	descs := make(map[metrics.ID]*prometheus.Desc)
	for _, id := range metrics.IDs() {
		descs[id] = prometheus.NewDesc(
			"credcore_"+id.Name()+"_total",
			"Total "+id.Name()+" events.",
			nil, nil,
		)
	}
	return &Exporter{source: source, descs: descs}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range e.descs {
		ch <- d
	}
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snapshot := e.source.MetricsSnapshot()
	for id, d := range e.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(snapshot[id]))
	}
}

// Handler returns an http.Handler serving this exporter on a private
// registry, so callers need not touch prometheus.DefaultRegisterer.
func (e *Exporter) Handler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(e); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
