package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pinglog/pinglog/analyzer/internal/analysis"
	"github.com/pinglog/pinglog/analyzer/internal/config"
)

const defaultTimeout = 10 * time.Second

// Alert is one rule that fired for a report.
type Alert struct {
	ID        string    `json:"id"`
	RuleName  string    `json:"rule_name"`
	Source    string    `json:"source"`
	RunID     string    `json:"run_id"`
	Severity  string    `json:"severity"`
	Condition string    `json:"condition"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	FiredAt   time.Time `json:"fired_at"`
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against reports and delivers the alerts that
// fire to the configured webhooks.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	client   *http.Client
}

// New compiles the rule conditions in cfg. An Engine with no rules is valid;
// Evaluate then returns nothing.
func New(cfg config.AlertsConfig) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for i, r := range cfg.Rules {
		cond, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %d %q: %w", i, r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = "warning"
		}
		e.rules = append(e.rules, rule{AlertRule: r, cond: cond})
	}
	return e, nil
}

// Rules returns the number of compiled rules.
func (e *Engine) Rules() int { return len(e.rules) }

// Evaluate tests every rule against rep and returns the alerts that fire, in
// rule order. Each fired alert is logged and delivered to all webhooks before
// Evaluate returns; delivery failures are logged and do not affect the result.
func (e *Engine) Evaluate(ctx context.Context, rep *analysis.Report) []Alert {
	var fired []Alert
	for _, r := range e.rules {
		ok, value := r.cond.eval(rep)
		if !ok {
			slog.Debug("alerts: rule clear", "rule", r.Name, "value", value)
			continue
		}
		a := Alert{
			ID:        fmt.Sprintf("%s:%s", r.Name, rep.RunID),
			RuleName:  r.Name,
			Source:    rep.Source,
			RunID:     rep.RunID,
			Severity:  r.Severity,
			Condition: r.Condition,
			Value:     value,
			Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
				r.Severity, r.Name, sourceName(rep.Source), r.Condition, value),
			FiredAt: rep.Finished,
		}
		slog.Warn("alerts: rule fired",
			"rule", r.Name,
			"source", rep.Source,
			"value", value,
			"severity", r.Severity,
		)
		e.deliver(ctx, &a)
		fired = append(fired, a)
	}
	return fired
}

func sourceName(s string) string {
	if s == "" || s == "-" {
		return "stdin"
	}
	return s
}
