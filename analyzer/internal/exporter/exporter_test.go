package exporter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinglog/pinglog/analyzer/internal/analysis"
)

const probeLog = `PING 1.2.3.4 (1.2.3.4): 56 data bytes
64 bytes from 1.2.3.4: icmp_seq=1 ttl=64 time=20.0 ms
ping: sendto: Network is down
Request timeout for icmp_seq 2
64 bytes from 1.2.3.4: icmp_seq=3 ttl=64 time=25.0 ms
64 bytes from 1.2.3.4: icmp_seq=4 ttl=64 time=30.0 ms
`

func report(t *testing.T) *analysis.Report {
	t.Helper()
	rep, err := analysis.Run(context.Background(), strings.NewReader(probeLog), analysis.Options{Source: "uplink.log"})
	require.NoError(t, err)
	return rep
}

func TestWriteTextfile_RoundTrip(t *testing.T) {
	rep := report(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pinglog.prom")

	require.NoError(t, WriteTextfile(path, rep))

	mfs, err := ReadTextfile(path)
	require.NoError(t, err)

	src := map[string]string{"source": "uplink.log"}
	assert.Equal(t, 6.0, Value(mfs["pinglog_lines_total"], src))
	assert.Equal(t, 3.0, Value(mfs["pinglog_records_total"], map[string]string{"category": "Normal"}))
	assert.Equal(t, 1.0, Value(mfs["pinglog_records_total"], map[string]string{"category": "Down"}))
	assert.Equal(t, 1.0, Value(mfs["pinglog_records_total"], map[string]string{"category": "Initialization"}))
	assert.Equal(t, 0.0, Value(mfs["pinglog_records_total"], map[string]string{"category": "Unexpected"}))
	assert.Len(t, mfs["pinglog_records_total"].GetMetric(), 11)

	assert.Equal(t, 1.0, Value(mfs["pinglog_intervals_total"], map[string]string{"kind": "up"}))
	assert.Equal(t, 1.0, Value(mfs["pinglog_intervals_total"], map[string]string{"kind": "down"}))

	assert.InDelta(t, 25.0, Value(mfs["pinglog_rtt_milliseconds"], map[string]string{"stat": "mean"}), 1e-9)
	assert.Equal(t, 20.0, Value(mfs["pinglog_rtt_milliseconds"], map[string]string{"stat": "min"}))
	assert.Equal(t, 30.0, Value(mfs["pinglog_rtt_milliseconds"], map[string]string{"stat": "max"}))
	assert.InDelta(t, 5.0, Value(mfs["pinglog_rtt_milliseconds"], map[string]string{"stat": "stddev"}), 1e-9)
	assert.Equal(t, 3.0, Value(mfs["pinglog_rtt_samples"], nil))

	assert.InDelta(t, 0.25, Value(mfs["pinglog_loss_ratio"], nil), 1e-9)
	assert.InDelta(t, rep.Health.Score, Value(mfs["pinglog_health_score"], nil), 1e-9)
	assert.Equal(t, 1.0, Value(mfs["pinglog_health_state"], map[string]string{"state": rep.Health.State}))
	assert.Equal(t, 1.0, Value(mfs["pinglog_run_info"], map[string]string{"run_id": rep.RunID}))
	assert.Equal(t, 0.0, Value(mfs["pinglog_problems_total"], map[string]string{"kind": "malformed_record"}))
	assert.InDelta(t, float64(rep.Finished.Unix()), Value(mfs["pinglog_last_run_timestamp_seconds"], nil), 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files left behind")
	assert.Equal(t, "pinglog.prom", entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteTextfile_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pinglog.prom")
	require.NoError(t, os.WriteFile(path, []byte("stale 1\n"), 0o644))

	require.NoError(t, WriteTextfile(path, report(t)))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "stale")
}

func TestWriteTextfile_MissingDirectory(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "pinglog.prom"), report(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exporter: create temp file")
}

func TestEncode_TextFormat(t *testing.T) {
	mfs, err := Gather(report(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, mfs))
	out := buf.String()

	assert.Contains(t, out, "# TYPE pinglog_records_total counter")
	assert.Contains(t, out, "# TYPE pinglog_health_score gauge")
	assert.Contains(t, out, `pinglog_records_total{category="Timeout",source="uplink.log"} 0`)
}

func TestGather_EmptyRun(t *testing.T) {
	rep, err := analysis.Run(context.Background(), strings.NewReader(""), analysis.Options{})
	require.NoError(t, err)

	mfs, err := Gather(rep)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	// No replies, so no RTT statistics are exported.
	assert.False(t, names["pinglog_rtt_milliseconds"])
	assert.True(t, names["pinglog_rtt_samples"])
	assert.True(t, names["pinglog_health_state"])
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("this is { not prometheus\n"))
	assert.Error(t, err)
}

func TestValue_NilFamily(t *testing.T) {
	assert.Zero(t, Value(nil, nil))
}
