package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pinglog/pinglog/analyzer/internal/config"
)

// recorder is a webhook endpoint that keeps every request body.
type recorder struct {
	mu     sync.Mutex
	bodies []map[string]any
	status int
}

func (rc *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	rc.mu.Lock()
	rc.bodies = append(rc.bodies, m)
	rc.mu.Unlock()
	if rc.status != 0 {
		w.WriteHeader(rc.status)
	}
}

func newEngine(t *testing.T, cfg config.AlertsConfig) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEvaluate_FiresInRuleOrder(t *testing.T) {
	e := newEngine(t, config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "lossy", Condition: "loss_pct > 20", Severity: "critical"},
		{Name: "slow", Condition: "rtt_mean_ms > 100"},
		{Name: "sick", Condition: "health == critical"},
	}})
	if e.Rules() != 3 {
		t.Fatalf("Rules() = %d, want 3", e.Rules())
	}

	fired := e.Evaluate(context.Background(), fixtureReport())
	if len(fired) != 2 {
		t.Fatalf("fired %d alerts, want 2: %+v", len(fired), fired)
	}
	if fired[0].RuleName != "lossy" || fired[1].RuleName != "sick" {
		t.Errorf("fired rules %q, %q", fired[0].RuleName, fired[1].RuleName)
	}
	if fired[0].Severity != "critical" {
		t.Errorf("severity: got %q", fired[0].Severity)
	}
	if fired[1].Severity != "warning" {
		t.Errorf("default severity: got %q, want warning", fired[1].Severity)
	}
	if fired[0].ID != "lossy:run-1" || fired[0].RunID != "run-1" || fired[0].Source != "uplink.log" {
		t.Errorf("identity: got %+v", fired[0])
	}
	if fired[0].Value != 25 {
		t.Errorf("value: got %v, want 25", fired[0].Value)
	}
	if !strings.Contains(fired[0].Message, "lossy fired on uplink.log") {
		t.Errorf("message: got %q", fired[0].Message)
	}
}

func TestEvaluate_NoRules(t *testing.T) {
	e := newEngine(t, config.AlertsConfig{})
	if got := e.Evaluate(context.Background(), fixtureReport()); len(got) != 0 {
		t.Errorf("expected no alerts, got %+v", got)
	}
}

func TestNew_RejectsUnknownField(t *testing.T) {
	_, err := New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "typo", Condition: "los_pct > 1"},
	}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), `alerts: rule 0 "typo"`) {
		t.Errorf("error %q does not name the rule", err)
	}
}

func TestEvaluate_DeliversWebhooks(t *testing.T) {
	slack, teams, generic := &recorder{}, &recorder{}, &recorder{}
	for _, rc := range []*recorder{slack, teams, generic} {
		srv := httptest.NewServer(rc)
		t.Cleanup(srv.Close)
		switch rc {
		case slack:
			t.Setenv("TEST_SLACK_URL", srv.URL)
		case teams:
			t.Setenv("TEST_TEAMS_URL", srv.URL)
		default:
			t.Setenv("TEST_HTTP_URL", srv.URL)
		}
	}

	e := newEngine(t, config.AlertsConfig{
		Rules: []config.AlertRule{{Name: "lossy", Condition: "loss_pct > 20", Severity: "critical"}},
		Webhooks: []config.WebhookConfig{
			{Type: "slack", URLEnv: "TEST_SLACK_URL"},
			{Type: "teams", URLEnv: "TEST_TEAMS_URL"},
			{Type: "http", URLEnv: "TEST_HTTP_URL"},
			{Type: "http", URLEnv: "TEST_UNSET_URL"},
		},
	})
	e.Evaluate(context.Background(), fixtureReport())

	if len(slack.bodies) != 1 || !strings.HasPrefix(slack.bodies[0]["text"].(string), "*[CRITICAL]* ") {
		t.Errorf("slack payload: %+v", slack.bodies)
	}
	if len(teams.bodies) != 1 || teams.bodies[0]["themeColor"] != "FF4F6A" || teams.bodies[0]["title"] != "pinglog alert: lossy" {
		t.Errorf("teams payload: %+v", teams.bodies)
	}
	if len(generic.bodies) != 1 {
		t.Fatalf("http payloads: %+v", generic.bodies)
	}
	alert, ok := generic.bodies[0]["alert"].(map[string]any)
	if !ok || alert["rule_name"] != "lossy" || alert["run_id"] != "run-1" {
		t.Errorf("http payload: %+v", generic.bodies[0])
	}
}

func TestEvaluate_DeliveryFailureKeepsAlert(t *testing.T) {
	rc := &recorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rc)
	defer srv.Close()
	t.Setenv("TEST_HTTP_URL", srv.URL)

	e := newEngine(t, config.AlertsConfig{
		Rules:    []config.AlertRule{{Name: "sick", Condition: "health != healthy"}},
		Webhooks: []config.WebhookConfig{{Type: "http", URLEnv: "TEST_HTTP_URL"}},
	})
	fired := e.Evaluate(context.Background(), fixtureReport())
	if len(fired) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(fired))
	}
	if len(rc.bodies) != 1 {
		t.Errorf("webhook called %d times, want 1", len(rc.bodies))
	}
}

func TestEvaluate_CancelledContextSkipsDelivery(t *testing.T) {
	rc := &recorder{}
	srv := httptest.NewServer(rc)
	defer srv.Close()
	t.Setenv("TEST_HTTP_URL", srv.URL)

	e := newEngine(t, config.AlertsConfig{
		Rules:    []config.AlertRule{{Name: "lossy", Condition: "loss_pct > 0"}},
		Webhooks: []config.WebhookConfig{{Type: "http", URLEnv: "TEST_HTTP_URL"}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if fired := e.Evaluate(ctx, fixtureReport()); len(fired) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(fired))
	}
	if len(rc.bodies) != 0 {
		t.Errorf("webhook called %d times after cancellation", len(rc.bodies))
	}
}

func TestSeverityLabelAndColor(t *testing.T) {
	if severityLabel("info") != "[INFO]" || severityColor("") != "00D4FF" {
		t.Error("unexpected default severity rendering")
	}
	if severityLabel("warning") != "[WARNING]" || severityColor("warning") != "FFAB40" {
		t.Error("unexpected warning rendering")
	}
}
