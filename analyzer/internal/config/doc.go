// Package config loads and watches the pinglog configuration file.
//
// Top-level types:
//   - Config{Analyzer, Tagger, Probe, Log, Alerts, Metrics}, parsed from YAML
//   - AnalyzerConfig: buffer_depth, rtt_threshold_ms, timestamp_pattern,
//     record_policy (skip|abort), cadence_tolerance, anomalies_as_down
//   - TaggerConfig: tag, interval, no_tag
//   - ProbeConfig: command, args, host, log_dir
//   - AlertsConfig: rules (name, condition, severity) and webhooks
//     (slack|teams|http, url_env resolved from the environment)
//
// Load(path) reads the YAML file, starts from Default() (depth 4, threshold
// 100ms, marker every 64 lines), then validates ranges and enums.
//
// Watch(ctx, path, onChange) uses fsnotify on the file's directory and calls
// onChange with each successfully reloaded Config.
package config
