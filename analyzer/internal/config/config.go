package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBufferDepth      = 4
	DefaultRTTThresholdMs   = 100.0
	DefaultTimestampPattern = `^# timestamp: (?:\S+: )?(?P<ts>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?)(?:\s|$)`
	DefaultRecordPolicy     = "skip"
	DefaultCadenceTolerance = 5 * time.Second
	DefaultTagInterval      = 64
	DefaultProbeCommand     = "ping"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

// Config is the top-level configuration of pinglog.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Tagger   TaggerConfig   `yaml:"tagger"`
	Probe    ProbeConfig    `yaml:"probe"`
	Log      LogConfig      `yaml:"log"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AnalyzerConfig holds the parameters of an analysis run.
type AnalyzerConfig struct {
	// BufferDepth is the number of lines held in the lookahead buffer.
	BufferDepth int `yaml:"buffer_depth"`

	// RTTThresholdMs is the round-trip time above which a reply is
	// classified RTTTooLong.
	RTTThresholdMs float64 `yaml:"rtt_threshold_ms"`

	// TimestampPattern recognizes timestamp comment lines. It must capture
	// the timestamp, preferably in a group named "ts".
	TimestampPattern string `yaml:"timestamp_pattern"`

	// RecordPolicy is one of: skip | abort.
	RecordPolicy string `yaml:"record_policy"`

	// CadenceTolerance is the drift between wall time and sequence numbers
	// tolerated between two timestamp markers.
	CadenceTolerance time.Duration `yaml:"cadence_tolerance"`

	// AnomaliesAsDown counts negative and too-long replies as down evidence.
	AnomaliesAsDown bool `yaml:"anomalies_as_down"`
}

// TaggerConfig controls the timestamp tagger.
type TaggerConfig struct {
	// Tag identifies the stream in each marker. Empty means "pid-<pid>".
	Tag string `yaml:"tag"`

	// Interval is the number of lines copied between markers.
	Interval int `yaml:"interval"`

	// NoTag writes markers without a stream tag.
	NoTag bool `yaml:"no_tag"`
}

// ProbeConfig describes the probe process launched by "pinglog run".
type ProbeConfig struct {
	// Command is the probe executable.
	Command string `yaml:"command"`

	// Args are passed before the host. "-n" keeps replies numeric.
	Args []string `yaml:"args"`

	// Host is the destination used when "pinglog run" is given none.
	Host string `yaml:"host"`

	// LogDir receives the tagged probe log of each run.
	LogDir string `yaml:"log_dir"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// SlogLevel maps Level to a slog.Level. Unknown levels map to Info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AlertsConfig holds alert rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based condition over the run report.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "loss_pct > 5" or "health == critical".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// MetricsConfig controls the node-exporter textfile output.
type MetricsConfig struct {
	// Textfile is the path of the .prom file to write. Empty disables it.
	Textfile string `yaml:"textfile"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	fillZero(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			BufferDepth:      DefaultBufferDepth,
			RTTThresholdMs:   DefaultRTTThresholdMs,
			TimestampPattern: DefaultTimestampPattern,
			RecordPolicy:     DefaultRecordPolicy,
			CadenceTolerance: DefaultCadenceTolerance,
		},
		Tagger: TaggerConfig{
			Interval: DefaultTagInterval,
		},
		Probe: ProbeConfig{
			Command: DefaultProbeCommand,
			Args:    []string{"-n"},
			Host:    "localhost",
			LogDir:  ".",
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// fillZero restores defaults for fields explicitly set to their zero value,
// e.g. "timestamp_pattern: ''".
func fillZero(cfg *Config) {
	d := Default()
	if cfg.Analyzer.TimestampPattern == "" {
		cfg.Analyzer.TimestampPattern = d.Analyzer.TimestampPattern
	}
	if cfg.Analyzer.RecordPolicy == "" {
		cfg.Analyzer.RecordPolicy = d.Analyzer.RecordPolicy
	}
	if cfg.Probe.Command == "" {
		cfg.Probe.Command = d.Probe.Command
	}
	if cfg.Probe.LogDir == "" {
		cfg.Probe.LogDir = d.Probe.LogDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}

// conditionPattern is the "field op value" shape of an alert condition.
var conditionPattern = regexp.MustCompile(`^\S+ (>|>=|<|<=|==|!=) \S+$`)

// Validate checks required fields and structural constraints.
func (cfg *Config) Validate() error {
	a := cfg.Analyzer
	if a.BufferDepth <= 0 {
		return fmt.Errorf("config: analyzer.buffer_depth must be positive")
	}
	if a.RTTThresholdMs <= 0 {
		return fmt.Errorf("config: analyzer.rtt_threshold_ms must be positive")
	}
	re, err := regexp.Compile(a.TimestampPattern)
	if err != nil {
		return fmt.Errorf("config: analyzer.timestamp_pattern: %w", err)
	}
	if re.NumSubexp() == 0 {
		return fmt.Errorf("config: analyzer.timestamp_pattern must contain a capture group")
	}
	switch a.RecordPolicy {
	case "skip", "abort":
	default:
		return fmt.Errorf("config: analyzer.record_policy: unknown policy %q", a.RecordPolicy)
	}
	if a.CadenceTolerance <= 0 {
		return fmt.Errorf("config: analyzer.cadence_tolerance must be positive")
	}

	if cfg.Tagger.Interval <= 0 {
		return fmt.Errorf("config: tagger.interval must be positive")
	}
	if strings.ContainsAny(cfg.Tagger.Tag, " \t\n") {
		return fmt.Errorf("config: tagger.tag %q must not contain whitespace", cfg.Tagger.Tag)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log.level: unknown level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format: unknown format %q", cfg.Log.Format)
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("config: alerts.rules[%d]: name is required", i)
		}
		if !conditionPattern.MatchString(strings.TrimSpace(r.Condition)) {
			return fmt.Errorf("config: alerts.rules[%d] %q: condition %q is not \"field op value\"", i, r.Name, r.Condition)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("config: alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("config: alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
