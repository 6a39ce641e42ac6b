// Package probe runs the ping command against one host and feeds its output
// through the timestamp tagger into the analyzer, keeping a copy of the tagged
// stream in a log file.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pinglog/pinglog/analyzer/internal/analysis"
	"github.com/pinglog/pinglog/analyzer/internal/tagger"
)

// DefaultCommand is the probe started when Options.Command is empty.
const DefaultCommand = "ping"

// waitDelay bounds how long Wait blocks on output pipes held open by
// children of a killed probe.
const waitDelay = 2 * time.Second

// Options configures a probe run.
type Options struct {
	// Command and Args start the probe; Host is appended as the last argument.
	Command string
	Args    []string
	Host    string

	// LogDir receives the tagged log file. Empty means the current directory.
	LogDir string

	Tagger   tagger.Options
	Analysis analysis.Options

	// Now replaces time.Now when naming the log file.
	Now func() time.Time
}

// Result is the outcome of a probe run.
type Result struct {
	Report  *analysis.Report
	LogPath string
	Tagged  tagger.Stats
}

// LogFileName returns the log file name for host started at t, e.g.
// "ping-8.8.8.8-20171226T080000.log".
func LogFileName(host string, t time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, host)
	return fmt.Sprintf("ping-%s-%s.log", safe, t.Format("20060102T150405"))
}

// Run starts the probe and analyzes its output until the probe exits or ctx
// is canceled. Cancellation stops the probe; the lines read so far are still
// analyzed, so an interrupted run returns a report.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Host == "" {
		return nil, errors.New("probe: host is required")
	}
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.LogDir == "" {
		opts.LogDir = "."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	filter, err := tagger.New(opts.Tagger)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	path := filepath.Join(opts.LogDir, LogFileName(opts.Host, opts.Now()))
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("probe: create log file: %w", err)
	}
	defer logFile.Close()

	g, gctx := errgroup.WithContext(ctx)

	args := append(append([]string{}, opts.Args...), opts.Host)
	cmd := exec.CommandContext(gctx, opts.Command, args...)
	outR, outW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = outW
	cmd.WaitDelay = waitDelay
	if err := cmd.Start(); err != nil {
		logFile.Close()
		os.Remove(path)
		return nil, fmt.Errorf("probe: start %s: %w", opts.Command, err)
	}
	slog.Info("probe: started",
		"command", opts.Command,
		"host", opts.Host,
		"pid", cmd.Process.Pid,
		"log", path,
	)

	// The probe writes stdout and stderr into outW; its diagnostics are
	// records too.
	g.Go(func() error {
		err := cmd.Wait()
		_ = outW.Close()
		if err != nil && gctx.Err() == nil {
			slog.Warn("probe: command exited", "command", opts.Command, "err", err)
		}
		return nil
	})

	tagR, tagW := io.Pipe()
	res := &Result{LogPath: path}
	g.Go(func() error {
		st, err := filter.Copy(gctx, outR, io.MultiWriter(tagW, logFile))
		res.Tagged = st
		_ = outR.Close()
		if err != nil && gctx.Err() == nil {
			tagW.CloseWithError(err)
			return fmt.Errorf("probe: %w", err)
		}
		return tagW.Close()
	})

	aopts := opts.Analysis
	if aopts.Source == "" {
		aopts.Source = path
	}
	g.Go(func() error {
		defer tagR.Close()
		rep, err := analysis.Run(context.WithoutCancel(gctx), tagR, aopts)
		if err != nil {
			return err
		}
		res.Report = rep
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := logFile.Sync(); err != nil {
		return nil, fmt.Errorf("probe: sync log file: %w", err)
	}
	slog.Info("probe: stopped",
		"host", opts.Host,
		"lines", res.Tagged.Lines,
		"markers", res.Tagged.Markers,
	)
	return res, nil
}
