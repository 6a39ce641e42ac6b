package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pinglog/pinglog/analyzer/internal/alerts"
	"github.com/pinglog/pinglog/analyzer/internal/analysis"
	"github.com/pinglog/pinglog/analyzer/internal/config"
	"github.com/pinglog/pinglog/analyzer/internal/exporter"
	"github.com/pinglog/pinglog/analyzer/internal/report"
)

// outputFlags are shared by the commands that produce a report.
type outputFlags struct {
	format      string
	noColor     bool
	metricsFile string
	failOnAlert bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.format, "format", "text", "report format: text, json or yaml")
	cmd.Flags().BoolVar(&o.noColor, "no-color", false, "disable color output")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path (overrides config)")
	cmd.Flags().BoolVar(&o.failOnAlert, "fail-on-alert", false, "exit with status 2 when an alert rule fires")
}

// analyzerFlags override the analyzer section of the config.
type analyzerFlags struct {
	threshold       float64
	depth           int
	strict          bool
	anomaliesAsDown bool
}

func (f *analyzerFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "RTT in ms above which a reply is anomalous (overrides config)")
	cmd.Flags().IntVar(&f.depth, "depth", 0, "lookahead buffer depth (overrides config)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "abort on the first malformed record")
	cmd.Flags().BoolVar(&f.anomaliesAsDown, "anomalies-as-down", false, "count out-of-range replies as down evidence")
}

// options builds analysis options from the config and any flag overrides.
func (f *analyzerFlags) options(cfg config.AnalyzerConfig, source string) analysis.Options {
	opts := analysis.Options{
		Source:           source,
		Depth:            cfg.BufferDepth,
		Threshold:        cfg.RTTThresholdMs,
		TimestampPattern: cfg.TimestampPattern,
		RecordPolicy:     analysis.RecordPolicy(cfg.RecordPolicy),
		CadenceTolerance: cfg.CadenceTolerance,
		AnomaliesAsDown:  cfg.AnomaliesAsDown || f.anomaliesAsDown,
	}
	if f.threshold > 0 {
		opts.Threshold = f.threshold
	}
	if f.depth > 0 {
		opts.Depth = f.depth
	}
	if f.strict {
		opts.RecordPolicy = analysis.PolicyAbort
	}
	return opts
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		file string
		af   analyzerFlags
		out  outputFlags
	)
	cmd := &cobra.Command{
		Use:   "analyze [-f file]",
		Short: "Analyze a ping log and print a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(out.format)
			if err != nil {
				return err
			}
			if af.threshold < 0 || af.depth < 0 {
				return fmt.Errorf("--threshold and --depth must not be negative")
			}

			var in io.Reader = cmd.InOrStdin()
			source := "stdin"
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in, source = f, file
			}

			rep, err := analysis.Run(cmd.Context(), in, af.options(a.cfg.Analyzer, source))
			if err != nil {
				return err
			}
			return a.finish(cmd.Context(), cmd.OutOrStdout(), rep, format, out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "probe log to analyze, - for stdin")
	af.register(cmd)
	out.register(cmd)
	return cmd
}

// finish renders rep, writes its metrics and evaluates the alert rules.
func (a *app) finish(ctx context.Context, w io.Writer, rep *analysis.Report, format report.Format, out outputFlags) error {
	if err := report.Write(w, rep, report.Options{Format: format, NoColor: out.noColor}); err != nil {
		return err
	}

	textfile := a.cfg.Metrics.Textfile
	if out.metricsFile != "" {
		textfile = out.metricsFile
	}
	if textfile != "" {
		if err := exporter.WriteTextfile(textfile, rep); err != nil {
			return err
		}
		slog.Info("metrics written", "path", textfile)
	}

	engine, err := alerts.New(a.cfg.Alerts)
	if err != nil {
		return err
	}
	fired := engine.Evaluate(ctx, rep)
	if len(fired) > 0 && out.failOnAlert {
		return fmt.Errorf("%d rule(s) fired: %w", len(fired), errAlertsFired)
	}
	return nil
}
