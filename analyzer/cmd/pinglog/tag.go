package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pinglog/pinglog/analyzer/internal/tagger"
)

func newTagCmd(a *app) *cobra.Command {
	var (
		tag      string
		interval int
		noTag    bool
		banner   bool
	)
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Copy stdin to stdout, inserting timestamp markers every N lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := tagger.Options{
				Tag:      a.cfg.Tagger.Tag,
				Interval: a.cfg.Tagger.Interval,
				NoTag:    a.cfg.Tagger.NoTag || noTag,
				Banner:   banner,
			}
			if tag != "" {
				opts.Tag = tag
			}
			if cmd.Flags().Changed("interval") {
				opts.Interval = interval
			}
			f, err := tagger.New(opts)
			if err != nil {
				return err
			}
			st, err := f.Copy(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			slog.Debug("tagger done", "lines", st.Lines, "markers", st.Markers)
			return err
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "stream tag written in each marker (default pid-<pid>)")
	cmd.Flags().IntVar(&interval, "interval", tagger.DefaultInterval, "lines between markers")
	cmd.Flags().BoolVar(&noTag, "no-tag", false, "write markers without a stream tag")
	cmd.Flags().BoolVar(&banner, "banner", false, "write start and end comments around the stream")
	return cmd
}
