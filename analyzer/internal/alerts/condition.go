package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pinglog/pinglog/analyzer/internal/analysis"
	"github.com/pinglog/pinglog/analyzer/internal/classify"
	"github.com/pinglog/pinglog/analyzer/internal/compute"
)

// condition is a parsed "field op value" rule expression.
//
// Supported expressions:
//
//	loss_pct > 5
//	uptime_pct < 99
//	anomaly_pct >= 1
//	health_score < 60
//	rtt_mean_ms > 80
//	rtt_max_ms > 500
//	rtt_stddev_ms > 20
//	down_intervals >= 3
//	unexpected > 0
//	warnings > 0
//	malformed_records > 0
//	span_errors > 0
//	marker_errors > 0
//	cadence_anomalies > 0
//	health == critical
//	health != healthy
type condition struct {
	field     string
	op        string
	threshold float64
	state     string // rhs of a health comparison
}

// numericFields maps a field name to its value in the report.
var numericFields = map[string]func(*analysis.Report) float64{
	"loss_pct":     (*analysis.Report).LossPct,
	"uptime_pct":   (*analysis.Report).UptimePct,
	"anomaly_pct":  (*analysis.Report).AnomalyPct,
	"health_score": func(r *analysis.Report) float64 { return r.Health.Score },
	"rtt_mean_ms":  func(r *analysis.Report) float64 { return r.RTT.Mean },
	"rtt_max_ms":   func(r *analysis.Report) float64 { return r.RTT.Max },
	"rtt_stddev_ms": func(r *analysis.Report) float64 {
		if r.RTT.StdDev == nil {
			return 0
		}
		return *r.RTT.StdDev
	},
	"down_intervals": func(r *analysis.Report) float64 {
		n := 0
		for _, iv := range r.Intervals {
			if iv.Kind == compute.Down {
				n++
			}
		}
		if r.Open != nil && r.Open.Kind == compute.Down {
			n++
		}
		return float64(n)
	},
	"unexpected":        func(r *analysis.Report) float64 { return float64(r.Count(classify.Unexpected)) },
	"warnings":          func(r *analysis.Report) float64 { return float64(r.Warnings) },
	"malformed_records": func(r *analysis.Report) float64 { return float64(r.MalformedRecords) },
	"span_errors":       func(r *analysis.Report) float64 { return float64(r.SpanErrors) },
	"marker_errors":     func(r *analysis.Report) float64 { return float64(r.MarkerErrors) },
	"cadence_anomalies": func(r *analysis.Report) float64 { return float64(r.CadenceAnomalies) },
}

// parseCondition validates cond. Unknown fields and operators are errors so a
// typo in the config cannot silently disable a rule.
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q is not \"field op value\"", cond)
	}
	c := condition{field: parts[0], op: parts[1]}

	if c.field == "health" {
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("condition %q: health supports == and != only", cond)
		}
		switch parts[2] {
		case compute.StateHealthy, compute.StateDegraded, compute.StateCritical, compute.StateUnknown:
			c.state = parts[2]
		default:
			return condition{}, fmt.Errorf("condition %q: unknown health state %q", cond, parts[2])
		}
		return c, nil
	}

	if _, ok := numericFields[c.field]; !ok {
		return condition{}, fmt.Errorf("condition %q: unknown field %q", cond, c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", cond, c.op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: value %q is not a number", cond, parts[2])
	}
	c.threshold = v
	return c, nil
}

// eval returns whether the condition holds for rep and the value it tested.
// Health comparisons report the health score as their value.
func (c condition) eval(rep *analysis.Report) (bool, float64) {
	if c.field == "health" {
		match := rep.Health.State == c.state
		if c.op == "!=" {
			match = !match
		}
		return match, rep.Health.Score
	}
	v := numericFields[c.field](rep)
	return compareFloat(v, c.op, c.threshold), v
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
