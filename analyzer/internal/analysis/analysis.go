// Package analysis drives a single pass over a probe log: it pulls lines
// through the lookahead buffer, classifies them, and folds every event into
// the counters, RTT statistics, interval tracker and timestamp correlator of
// the run.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinglog/pinglog/analyzer/internal/classify"
	"github.com/pinglog/pinglog/analyzer/internal/compute"
	"github.com/pinglog/pinglog/analyzer/internal/linebuf"
	"github.com/pinglog/pinglog/analyzer/internal/timestamp"
)

// RecordPolicy decides what happens to a malformed record.
type RecordPolicy string

const (
	// PolicySkip logs the record, counts it as Unexpected and continues.
	PolicySkip RecordPolicy = "skip"
	// PolicyAbort stops the run with the record's error.
	PolicyAbort RecordPolicy = "abort"
)

// DefaultCadenceTolerance is the drift between elapsed wall time and elapsed
// sequence numbers above which a correlation is reported as a cadence anomaly.
const DefaultCadenceTolerance = 5 * time.Second

// Options configures a run. The zero value analyzes with the defaults.
type Options struct {
	// Source names the input in the report, e.g. a file path or "stdin".
	Source string

	Depth            int
	Threshold        float64
	TimestampPattern string
	RecordPolicy     RecordPolicy
	CadenceTolerance time.Duration

	// AnomaliesAsDown treats NegativeRTT and RTTTooLong replies as down
	// evidence instead of up evidence.
	AnomaliesAsDown bool

	// OnInterval is called for each interval as it closes.
	OnInterval func(compute.Interval)
	// OnCorrelation is called for each pair of consecutive timestamp markers.
	OnCorrelation func(timestamp.Correlation)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Depth <= 0 {
		o.Depth = linebuf.DefaultDepth
	}
	if o.Threshold == 0 {
		o.Threshold = classify.DefaultThreshold
	}
	if o.RecordPolicy == "" {
		o.RecordPolicy = PolicySkip
	}
	if o.CadenceTolerance <= 0 {
		o.CadenceTolerance = DefaultCadenceTolerance
	}
	if o.Source == "" {
		o.Source = "stdin"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func (o *Options) validate() error {
	switch o.RecordPolicy {
	case PolicySkip, PolicyAbort:
	default:
		return fmt.Errorf("analysis: record policy %q must be %q or %q", o.RecordPolicy, PolicySkip, PolicyAbort)
	}
	return nil
}

// run is the mutable state of one pass. It is discarded when Run returns.
type run struct {
	opts Options

	classifier *classify.Classifier
	tracker    compute.Tracker
	rtt        compute.Accumulator
	upLens     compute.Accumulator
	downLens   compute.Accumulator
	correlator timestamp.Correlator

	counts     map[classify.Category]int
	classified int
	intervals  []compute.Interval
	anomalies  int
	malformed  int
	spanErrs   int
	markerErrs int
	cadence    int
}

// Run analyzes r to EOF and returns the report. The source is closed when it
// is exhausted, on a read error, or when ctx is canceled; a canceled run
// returns ctx.Err() and no report.
func Run(ctx context.Context, r io.Reader, opts Options) (*Report, error) {
	opts.defaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	classifier, err := classify.New(classify.Config{
		Threshold:        opts.Threshold,
		TimestampPattern: opts.TimestampPattern,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := newSource(r)
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer stop()

	started := opts.Now()
	slog.Info("analysis: start",
		"source", opts.Source,
		"buffer_depth", opts.Depth,
		"rtt_threshold_ms", classifier.Threshold(),
		"record_policy", opts.RecordPolicy,
	)

	buf := linebuf.New(src, opts.Depth)
	defer buf.Close()

	st := &run{
		opts:       opts,
		classifier: classifier,
		counts:     make(map[classify.Category]int, len(classify.All())),
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, ok := buf.Next()
		if !ok {
			break
		}
		if err := st.step(buf, line); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := buf.Err(); err != nil {
		return nil, fmt.Errorf("analysis: read %s: %w", opts.Source, err)
	}

	rep := st.report(buf, started, opts.Now())
	slog.Info("analysis: done",
		"run_id", rep.RunID,
		"lines", rep.Lines,
		"classified", rep.Classified,
		"warnings", rep.Warnings,
		"malformed_records", rep.MalformedRecords,
		"health", rep.Health.State,
	)
	return rep, nil
}

// step classifies one record and folds it into the run state.
func (st *run) step(src classify.LineSource, line linebuf.Line) error {
	st.classified++
	ev, err := st.classifier.Classify(src, line)
	if err != nil {
		var mre *classify.MalformedRecordError
		if !errors.As(err, &mre) || st.opts.RecordPolicy == PolicyAbort {
			return fmt.Errorf("analysis: %w", err)
		}
		slog.Warn("analysis: skipping malformed record", "line", mre.Line, "err", err)
		st.malformed++
		st.counts[classify.Unexpected]++
		return nil
	}
	st.counts[ev.Category]++

	switch ev.Category {
	case classify.Normal:
		st.rtt.Add(ev.RTT)
	case classify.NegativeRTT, classify.RTTTooLong:
		st.anomalies++
	case classify.Timestamp:
		st.correlate(ev)
		return nil
	}

	kind := ev.Category.Evidence()
	if kind == compute.None {
		return nil
	}
	if st.opts.AnomaliesAsDown && ev.Category.Anomalous() {
		kind = compute.Down
	}
	if iv, closed := st.tracker.Observe(kind, ev.Seq, ev.Category.String()); closed {
		st.closeInterval(iv)
	}
	return nil
}

func (st *run) closeInterval(iv compute.Interval) {
	st.intervals = append(st.intervals, iv)
	if iv.Kind == compute.Up {
		st.upLens.Add(float64(iv.Length()))
	} else {
		st.downLens.Add(float64(iv.Length()))
	}
	slog.Info("analysis: interval closed",
		"kind", iv.Kind.String(),
		"start", iv.Start,
		"end", iv.End,
		"length", iv.Length(),
		"explanation", iv.Explanation,
	)
	if st.opts.OnInterval != nil {
		st.opts.OnInterval(iv)
	}
}

func (st *run) correlate(ev classify.Event) {
	corr, err := st.correlator.Observe(ev.Timestamp, st.tracker.Sequence(), ev.Line)
	if err != nil {
		var span *timestamp.UnsupportedTimeSpanError
		if errors.As(err, &span) {
			st.spanErrs++
			slog.Warn("analysis: timestamp span not computed", "line", ev.Line, "err", err)
			return
		}
		st.markerErrs++
		slog.Warn("analysis: bad timestamp marker", "line", ev.Line, "err", err)
		return
	}
	if corr == nil {
		return
	}
	slog.Debug("analysis: time check",
		"line", ev.Line,
		"elapsed_seconds", corr.ElapsedSeconds,
		"elapsed_sequence", corr.ElapsedSequence,
		"drift", corr.Drift,
	)
	if corr.SequenceKnown && math.Abs(corr.Drift) > st.opts.CadenceTolerance.Seconds() {
		st.cadence++
		slog.Warn("analysis: cadence anomaly",
			"line", ev.Line,
			"from", corr.Previous.Value.Raw,
			"to", corr.Current.Value.Raw,
			"drift_seconds", corr.Drift,
		)
	}
	if st.opts.OnCorrelation != nil {
		st.opts.OnCorrelation(*corr)
	}
}

func (st *run) report(buf *linebuf.Buffer, started, finished time.Time) *Report {
	counts := make(map[classify.Category]int, len(classify.All()))
	for _, cat := range classify.All() {
		counts[cat] = st.counts[cat]
	}
	up, down := st.tracker.Samples()
	rep := &Report{
		RunID:            uuid.NewString(),
		Source:           st.opts.Source,
		Started:          started,
		Finished:         finished,
		Elapsed:          finished.Sub(started),
		Depth:            buf.Depth(),
		Threshold:        st.classifier.Threshold(),
		Policy:           st.opts.RecordPolicy,
		Lines:            buf.Lines(),
		Classified:       st.classified,
		Counts:           counts,
		Intervals:        append([]compute.Interval(nil), st.intervals...),
		Sequence:         st.tracker.Sequence(),
		Offset:           st.tracker.Offset(),
		RTT:              st.rtt.Summary(),
		UpLengths:        st.upLens.Summary(),
		DownLengths:      st.downLens.Summary(),
		Warnings:         st.classifier.Warnings(),
		MalformedRecords: st.malformed,
		SpanErrors:       st.spanErrs,
		MarkerErrors:     st.markerErrs,
		Anchors:          st.correlator.Anchors(),
		CadenceAnomalies: st.cadence,
		UpSamples:        up,
		DownSamples:      down,
		Anomalies:        st.anomalies,
	}
	if open, ok := st.tracker.Current(); ok {
		rep.Open = &open
	}
	rep.Health = rep.score()
	return rep
}

// source wraps the input so the buffer and the cancellation hook share a
// single Close.
type source struct {
	io.Reader
	close func() error
}

func newSource(r io.Reader) *source {
	return &source{
		Reader: r,
		close: sync.OnceValue(func() error {
			if c, ok := r.(io.Closer); ok {
				return c.Close()
			}
			return nil
		}),
	}
}

func (s *source) Close() error { return s.close() }
