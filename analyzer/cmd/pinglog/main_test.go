package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinglog/pinglog/analyzer/internal/classify"
	"github.com/pinglog/pinglog/analyzer/internal/exporter"
)

const probeLog = `PING 1.2.3.4 (1.2.3.4): 56 data bytes
64 bytes from 1.2.3.4: icmp_seq=1 ttl=64 time=20.0 ms
ping: sendto: Network is down
Request timeout for icmp_seq 2
64 bytes from 1.2.3.4: icmp_seq=3 ttl=64 time=25.0 ms
`

// execute runs the CLI with args and stdin, returning stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(io.Discard)
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pinglog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAnalyze_JSONFromStdin(t *testing.T) {
	out, err := execute(t, probeLog, "analyze", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Source string         `json:"source"`
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "stdin", got.Source)
	assert.Equal(t, 2, got.Counts["Normal"])
	assert.Equal(t, 1, got.Counts["Down"])
	assert.Equal(t, 1, got.Counts["Initialization"])
}

func TestAnalyze_FileWithMetrics(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "uplink.log")
	require.NoError(t, os.WriteFile(logPath, []byte(probeLog), 0o600))
	metrics := filepath.Join(dir, "pinglog.prom")

	out, err := execute(t, "", "analyze", "-f", logPath, "--format", "yaml", "--metrics-file", metrics)
	require.NoError(t, err)
	assert.Contains(t, out, "source: "+logPath)

	mfs, err := exporter.ReadTextfile(metrics)
	require.NoError(t, err)
	assert.Equal(t, 2.0, exporter.Value(mfs["pinglog_records_total"], map[string]string{"category": "Normal"}))
}

func TestAnalyze_TextNoColor(t *testing.T) {
	out, err := execute(t, probeLog, "analyze", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "pinglog report")
	assert.NotContains(t, out, "\x1b[")
}

func TestAnalyze_FailOnAlert(t *testing.T) {
	cfg := writeConfig(t, `
alerts:
  rules:
    - name: lossy
      condition: "loss_pct > 10"
      severity: critical
`)
	_, err := execute(t, probeLog, "--config", cfg, "analyze", "--fail-on-alert", "--format", "json")
	assert.True(t, errors.Is(err, errAlertsFired), "got %v", err)

	// Without the flag a fired rule is only logged.
	_, err = execute(t, probeLog, "--config", cfg, "analyze", "--format", "json")
	assert.NoError(t, err)
}

func TestAnalyze_ThresholdFlagOverridesConfig(t *testing.T) {
	cfg := writeConfig(t, "analyzer:\n  rtt_threshold_ms: 500\n")
	out, err := execute(t, probeLog, "--config", cfg, "analyze", "--format", "json", "--threshold", "22")
	require.NoError(t, err)

	var got struct {
		Threshold float64        `json:"rtt_threshold_ms"`
		Counts    map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 22.0, got.Threshold)
	assert.Equal(t, 1, got.Counts[classify.RTTTooLong.String()])
}

func TestAnalyze_Strict(t *testing.T) {
	_, err := execute(t, "Request timeout for icmp_seq x\n", "analyze", "--strict")
	var mre *classify.MalformedRecordError
	assert.ErrorAs(t, err, &mre)

	_, err = execute(t, "Request timeout for icmp_seq x\n", "analyze", "--format", "json")
	assert.NoError(t, err)
}

func TestAnalyze_BadFlags(t *testing.T) {
	_, err := execute(t, probeLog, "analyze", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = execute(t, probeLog, "analyze", "--depth", "-1")
	assert.Error(t, err)

	_, err = execute(t, "", "analyze", "-f", filepath.Join(t.TempDir(), "absent.log"))
	assert.Error(t, err)
}

func TestConfig_ExplicitMissingFile(t *testing.T) {
	_, err := execute(t, probeLog, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestConfig_InvalidLogLevelFlag(t *testing.T) {
	_, err := execute(t, probeLog, "--log-level", "loud", "analyze")
	assert.ErrorContains(t, err, "log.level")
}

func TestTag(t *testing.T) {
	out, err := execute(t, "a\nb\nc\n", "tag", "--tag", "lab", "--interval", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "# timestamp: lab: "))
	assert.Equal(t, "a", lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "# timestamp: lab: "))
	assert.Equal(t, "c", lines[4])
}

func TestTag_ConfigInterval(t *testing.T) {
	cfg := writeConfig(t, "tagger:\n  interval: 1\n  no_tag: true\n")
	out, err := execute(t, "a\nb\n", "--config", cfg, "tag")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "# timestamp: "))
	assert.NotContains(t, out, "pid-")
}

func TestRun_RequiresHost(t *testing.T) {
	cfg := writeConfig(t, "probe:\n  host: ''\n")
	_, err := execute(t, "", "--config", cfg, "run")
	assert.ErrorContains(t, err, "no host")

	_, err = execute(t, "", "run", "10.0.0.1", "10.0.0.2")
	assert.Error(t, err)
}

func TestRun_WithFakeProbe(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	cfg := writeConfig(t, fmt.Sprintf(`
probe:
  command: sh
  args: ['-c', 'printf "64 bytes from %%s: icmp_seq=1 ttl=64 time=9.5 ms\n" "$0"']
  log_dir: %s
`, dir))

	out, err := execute(t, "", "--config", cfg, "run", "10.9.8.7", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Source string         `json:"source"`
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Counts["Normal"])
	assert.Equal(t, 1, got.Counts["Timestamp"])
	assert.Equal(t, dir, filepath.Dir(got.Source))
	assert.True(t, strings.HasPrefix(filepath.Base(got.Source), "ping-10.9.8.7-"))

	b, err := os.ReadFile(got.Source)
	require.NoError(t, err)
	assert.Contains(t, string(b), "64 bytes from 10.9.8.7: icmp_seq=1")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "dev (commit none, built unknown)\n", out)
}
