package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pinglog/pinglog/analyzer/internal/probe"
	"github.com/pinglog/pinglog/analyzer/internal/report"
	"github.com/pinglog/pinglog/analyzer/internal/tagger"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		logDir string
		af     analyzerFlags
		out    outputFlags
	)
	cmd := &cobra.Command{
		Use:   "run [host]",
		Short: "Ping a host, log the tagged output and report when the probe stops",
		Long: "Run starts the probe command against host (the config's probe.host " +
			"when none is given). Output is tagged, written to a log file in " +
			"--log-dir and analyzed as it arrives. Interrupt to stop and print the report.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(out.format)
			if err != nil {
				return err
			}
			host := a.cfg.Probe.Host
			if len(args) == 1 {
				host = args[0]
			}
			if host == "" {
				return fmt.Errorf("no host given and probe.host is empty")
			}
			if logDir == "" {
				logDir = a.cfg.Probe.LogDir
			}

			ctx := cmd.Context()
			a.watchConfig(ctx)

			res, err := probe.Run(ctx, probe.Options{
				Command: a.cfg.Probe.Command,
				Args:    a.cfg.Probe.Args,
				Host:    host,
				LogDir:  logDir,
				Tagger: tagger.Options{
					Tag:      a.cfg.Tagger.Tag,
					Interval: a.cfg.Tagger.Interval,
					NoTag:    a.cfg.Tagger.NoTag,
				},
				Analysis: af.options(a.cfg.Analyzer, ""),
			})
			if err != nil {
				return err
			}
			// Alert delivery outlives the interrupt that ended the probe.
			return a.finish(context.WithoutCancel(ctx), cmd.OutOrStdout(), res.Report, format, out)
		},
	}
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory for tagged probe logs (overrides config)")
	af.register(cmd)
	out.register(cmd)
	return cmd
}
