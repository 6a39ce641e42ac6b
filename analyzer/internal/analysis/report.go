package analysis

import (
	"time"

	"github.com/pinglog/pinglog/analyzer/internal/classify"
	"github.com/pinglog/pinglog/analyzer/internal/compute"
)

// Report is the result of one analysis run. It is a value copy; nothing in it
// aliases run state.
type Report struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Source    string        `json:"source" yaml:"source"`
	Started   time.Time     `json:"started" yaml:"started"`
	Finished  time.Time     `json:"finished" yaml:"finished"`
	Depth     int           `json:"buffer_depth" yaml:"buffer_depth"`
	Threshold float64       `json:"rtt_threshold_ms" yaml:"rtt_threshold_ms"`
	Policy    RecordPolicy  `json:"record_policy" yaml:"record_policy"`
	Elapsed   time.Duration `json:"-" yaml:"-"`

	// Lines is the number of physical lines read; Classified the number of
	// records, which is smaller when multi-line records were seen.
	Lines      int                      `json:"lines" yaml:"lines"`
	Classified int                      `json:"classified" yaml:"classified"`
	Counts     map[classify.Category]int `json:"counts" yaml:"counts"`

	Intervals []compute.Interval `json:"intervals" yaml:"intervals"`
	Open      *compute.Interval  `json:"open_interval,omitempty" yaml:"open_interval,omitempty"`
	Sequence  int                `json:"sequence" yaml:"sequence"`
	Offset    int                `json:"sequence_offset" yaml:"sequence_offset"`

	RTT         compute.Summary `json:"rtt" yaml:"rtt"`
	UpLengths   compute.Summary `json:"up_lengths" yaml:"up_lengths"`
	DownLengths compute.Summary `json:"down_lengths" yaml:"down_lengths"`

	Warnings         int `json:"warnings" yaml:"warnings"`
	MalformedRecords int `json:"malformed_records" yaml:"malformed_records"`
	SpanErrors       int `json:"span_errors" yaml:"span_errors"`
	MarkerErrors     int `json:"marker_errors" yaml:"marker_errors"`
	Anchors          int `json:"anchors" yaml:"anchors"`
	CadenceAnomalies int `json:"cadence_anomalies" yaml:"cadence_anomalies"`

	UpSamples   int `json:"up_samples" yaml:"up_samples"`
	DownSamples int `json:"down_samples" yaml:"down_samples"`
	Anomalies   int `json:"anomalies" yaml:"anomalies"`

	Health compute.Output `json:"health" yaml:"health"`
}

// Count returns the number of records classified as cat.
func (r *Report) Count(cat classify.Category) int {
	return r.Counts[cat]
}

// Checksum returns Classified minus the sum of all category counts. It is zero
// for every completed run.
func (r *Report) Checksum() int {
	sum := 0
	for _, cat := range classify.All() {
		sum += r.Counts[cat]
	}
	return r.Classified - sum
}

// LossPct is the share of sequence-bearing records that were down evidence.
func (r *Report) LossPct() float64 {
	total := r.UpSamples + r.DownSamples
	if total == 0 {
		return 0
	}
	return float64(r.DownSamples) / float64(total) * 100
}

// UptimePct is the share of the observed sequence span covered by up
// intervals, the open one included.
func (r *Report) UptimePct() float64 {
	var up, all int
	add := func(iv compute.Interval) {
		all += iv.Length()
		if iv.Kind == compute.Up {
			up += iv.Length()
		}
	}
	for _, iv := range r.Intervals {
		add(iv)
	}
	if r.Open != nil {
		add(*r.Open)
	}
	if all == 0 {
		return 0
	}
	return float64(up) / float64(all) * 100
}

// AnomalyPct is the share of replies whose round-trip time was negative or
// above the threshold.
func (r *Report) AnomalyPct() float64 {
	replies := r.Counts[classify.Normal] + r.Anomalies
	if replies == 0 {
		return 0
	}
	return float64(r.Anomalies) / float64(replies) * 100
}

func (r *Report) score() compute.Output {
	return compute.Compute(compute.Input{
		Samples:           r.UpSamples + r.DownSamples,
		LossPct:           r.LossPct(),
		LatencyMs:         r.RTT.Mean,
		BaselineLatencyMs: r.Threshold,
		AnomalyPct:        r.AnomalyPct(),
		UptimePct:         r.UptimePct(),
	})
}
