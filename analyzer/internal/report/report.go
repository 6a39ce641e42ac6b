// Package report renders an analysis report for people (text) and for other
// tools (JSON, YAML).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pinglog/pinglog/analyzer/internal/analysis"
)

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts the names of the supported formats, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("report: unknown format %q (want text, json or yaml)", s)
	}
}

// Options tunes rendering.
type Options struct {
	Format  Format
	NoColor bool
}

// Write renders rep to w in the format named by opts.
func Write(w io.Writer, rep *analysis.Report, opts Options) error {
	switch opts.Format {
	case FormatText, "":
		return Text(w, rep, opts.NoColor)
	case FormatJSON:
		return JSON(w, rep)
	case FormatYAML:
		return YAML(w, rep)
	default:
		return fmt.Errorf("report: unknown format %q", opts.Format)
	}
}

// JSON writes rep as indented JSON.
func JSON(w io.Writer, rep *analysis.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// YAML writes rep as a YAML document.
func YAML(w io.Writer, rep *analysis.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	return nil
}
