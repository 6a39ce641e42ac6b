// Package compute holds the numeric engines behind a probe analysis run.
//
// stats.go provides Accumulator, a single-pass mean/variance/min/max over a
// stream of reals (Welford's algorithm). It keeps no history.
//
// tracker.go provides Tracker, which turns the probe's wrapping 16-bit
// icmp_seq into a monotonic counter and groups observations into up and down
// intervals. Observe returns each interval as it closes.
//
// score.go provides the pure Compute(Input) function that folds loss,
// latency, reply anomalies and uptime into a 0–100 link health score:
// loss(40%) + latency(30%) + anomaly(20%) + uptime(10%).
//
// Health state thresholds: Healthy ≥85, Degraded 60–84, Critical <60, Unknown.
package compute
