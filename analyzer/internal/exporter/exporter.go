// Package exporter renders an analysis report as Prometheus metrics and writes
// them in the text exposition format, e.g. for node_exporter's textfile
// collector.
package exporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/pinglog/pinglog/analyzer/internal/analysis"
	"github.com/pinglog/pinglog/analyzer/internal/classify"
	"github.com/pinglog/pinglog/analyzer/internal/compute"
)

const namespace = "pinglog"

// reportMetrics holds the collectors filled from one report.
type reportMetrics struct {
	info       *prometheus.GaugeVec
	lines      prometheus.Counter
	records    *prometheus.CounterVec
	intervals  *prometheus.CounterVec
	rtt        *prometheus.GaugeVec
	rttSamples prometheus.Gauge
	score      prometheus.Gauge
	state      *prometheus.GaugeVec
	lossRatio  prometheus.Gauge
	upRatio    prometheus.Gauge
	problems   *prometheus.CounterVec
	finished   prometheus.Gauge
}

func newReportMetrics(source string) *reportMetrics {
	constLabels := prometheus.Labels{"source": source}
	return &reportMetrics{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_info",
			Help:        "Identity of the analysis run that produced these metrics.",
			ConstLabels: constLabels,
		}, []string{"run_id"}),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "lines_total",
			Help:        "Physical lines read from the probe log.",
			ConstLabels: constLabels,
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_total",
			Help:        "Records classified, by category.",
			ConstLabels: constLabels,
		}, []string{"category"}),
		intervals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "intervals_total",
			Help:        "Closed up and down intervals.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		rtt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "rtt_milliseconds",
			Help:        "Round-trip time statistics over normal replies.",
			ConstLabels: constLabels,
		}, []string{"stat"}),
		rttSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "rtt_samples",
			Help:        "Normal replies folded into the RTT statistics.",
			ConstLabels: constLabels,
		}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "health_score",
			Help:        "Link health score, 0 to 100.",
			ConstLabels: constLabels,
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "health_state",
			Help:        "1 for the current link health state, 0 otherwise.",
			ConstLabels: constLabels,
		}, []string{"state"}),
		lossRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "loss_ratio",
			Help:        "Share of sequence-bearing records that were down evidence.",
			ConstLabels: constLabels,
		}),
		upRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "uptime_ratio",
			Help:        "Share of the observed sequence span covered by up intervals.",
			ConstLabels: constLabels,
		}),
		problems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "problems_total",
			Help:        "Non-fatal problems seen during the run, by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time at which the analysis run finished.",
			ConstLabels: constLabels,
		}),
	}
}

func (m *reportMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.info, m.lines, m.records, m.intervals, m.rtt, m.rttSamples,
		m.score, m.state, m.lossRatio, m.upRatio, m.problems, m.finished,
	}
}

func (m *reportMetrics) fill(rep *analysis.Report) {
	m.info.WithLabelValues(rep.RunID).Set(1)
	m.lines.Add(float64(rep.Lines))
	for _, cat := range classify.All() {
		m.records.WithLabelValues(cat.String()).Add(float64(rep.Count(cat)))
	}

	var up, down int
	for _, iv := range rep.Intervals {
		if iv.Kind == compute.Up {
			up++
		} else {
			down++
		}
	}
	m.intervals.WithLabelValues("up").Add(float64(up))
	m.intervals.WithLabelValues("down").Add(float64(down))

	m.rttSamples.Set(float64(rep.RTT.N))
	if rep.RTT.N > 0 {
		m.rtt.WithLabelValues("mean").Set(rep.RTT.Mean)
		m.rtt.WithLabelValues("min").Set(rep.RTT.Min)
		m.rtt.WithLabelValues("max").Set(rep.RTT.Max)
	}
	if rep.RTT.StdDev != nil {
		m.rtt.WithLabelValues("stddev").Set(*rep.RTT.StdDev)
	}

	m.score.Set(rep.Health.Score)
	for _, s := range []string{compute.StateHealthy, compute.StateDegraded, compute.StateCritical, compute.StateUnknown} {
		v := 0.0
		if s == rep.Health.State {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
	m.lossRatio.Set(rep.LossPct() / 100)
	m.upRatio.Set(rep.UptimePct() / 100)

	m.problems.WithLabelValues("protocol_warning").Add(float64(rep.Warnings))
	m.problems.WithLabelValues("malformed_record").Add(float64(rep.MalformedRecords))
	m.problems.WithLabelValues("span_error").Add(float64(rep.SpanErrors))
	m.problems.WithLabelValues("marker_error").Add(float64(rep.MarkerErrors))
	m.problems.WithLabelValues("cadence_anomaly").Add(float64(rep.CadenceAnomalies))

	m.finished.Set(float64(rep.Finished.UnixNano()) / 1e9)
}

// Gather registers the metrics of rep in a fresh registry and returns the
// gathered families, sorted by name.
func Gather(rep *analysis.Report) ([]*dto.MetricFamily, error) {
	reg := prometheus.NewPedanticRegistry()
	m := newReportMetrics(rep.Source)
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("exporter: register: %w", err)
		}
	}
	m.fill(rep)
	mfs, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("exporter: gather: %w", err)
	}
	return mfs, nil
}

// Encode writes mfs to w in the Prometheus text format.
func Encode(w io.Writer, mfs []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("exporter: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile writes the metrics of rep to path. The file is replaced
// atomically, so a concurrent scrape sees either the old or the new content.
func WriteTextfile(path string, rep *analysis.Report) error {
	mfs, err := Gather(rep)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("exporter: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, mfs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("exporter: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("exporter: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("exporter: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("exporter: rename: %w", err)
	}
	return nil
}

// ReadTextfile parses a text exposition file back into metric families.
func ReadTextfile(path string) (map[string]*dto.MetricFamily, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exporter: open: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned.
func Parse(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("exporter: parse prometheus text: %w", err)
	}
	return mfs, nil
}

// Value returns the value of the sample in mf whose labels include all of
// match, or 0 when there is none.
func Value(mf *dto.MetricFamily, match map[string]string) float64 {
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, match) {
			continue
		}
		switch {
		case m.Counter != nil:
			return m.Counter.GetValue()
		case m.Gauge != nil:
			return m.Gauge.GetValue()
		case m.Untyped != nil:
			return m.Untyped.GetValue()
		}
	}
	return 0
}

func hasLabels(m *dto.Metric, match map[string]string) bool {
	for name, want := range match {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
