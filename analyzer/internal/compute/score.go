package compute

// Weight constants for the link health score formula.
// They must sum to 1.0.
const (
	weightLoss    = 0.40
	weightLatency = 0.30
	weightAnomaly = 0.20
	weightUptime  = 0.10
)

// State constants returned by the score calculator.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
	StateUnknown  = "unknown"
)

// Thresholds that map a score to a health state.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 60.0
)

// Input holds the normalised values fed into the score formula.
// All percentage fields are in the range 0–100.
type Input struct {
	// Samples is the number of sequence-bearing events seen. Zero means
	// there is nothing to score.
	Samples int

	// LossPct is the percentage of sequence-bearing events that were down
	// evidence (timeouts, unreachable network, gateway failures).
	LossPct float64

	// LatencyMs is the mean round-trip time of accepted replies.
	LatencyMs float64

	// BaselineLatencyMs is the RTT threshold of the run. When non-zero the
	// latency factor is 1 - clamp(Latency/Baseline, 0, 1); when zero the
	// factor defaults to 1.0.
	BaselineLatencyMs float64

	// AnomalyPct is the percentage of replies that were too slow or carried
	// a negative round-trip time.
	AnomalyPct float64

	// UptimePct is the share of the observed sequence span covered by up
	// intervals.
	UptimePct float64
}

// Output is the result of the score calculation.
type Output struct {
	// Score is the composite health score in the range 0–100.
	Score float64 `json:"score" yaml:"score"`

	// State is one of: "healthy", "degraded", "critical", "unknown".
	State string `json:"state" yaml:"state"`

	// The four factor values (each 0–1) used to compute Score.
	LossFactor    float64 `json:"loss_factor" yaml:"loss_factor"`
	LatencyFactor float64 `json:"latency_factor" yaml:"latency_factor"`
	AnomalyFactor float64 `json:"anomaly_factor" yaml:"anomaly_factor"`
	UptimeFactor  float64 `json:"uptime_factor" yaml:"uptime_factor"`
}

// Compute calculates the link health score from the given inputs.
//
//	score = (
//	    (1 - loss_pct/100)      * 0.40  +
//	    (1 - latency_ratio)     * 0.30  +   // latency_ratio = mean/baseline, capped at 1
//	    (1 - anomaly_pct/100)   * 0.20  +
//	    uptime_pct/100          * 0.10
//	) * 100
//
// With no samples the state is "unknown".
func Compute(in Input) Output {
	if in.Samples == 0 {
		return Output{State: StateUnknown}
	}

	lossFactor := 1 - clamp01(in.LossPct/100)

	latencyFactor := 1.0
	if in.BaselineLatencyMs > 0 {
		latencyFactor = 1 - clamp01(in.LatencyMs/in.BaselineLatencyMs)
	}

	anomalyFactor := 1 - clamp01(in.AnomalyPct/100)
	uptimeFactor := clamp01(in.UptimePct / 100)

	score := (lossFactor*weightLoss +
		latencyFactor*weightLatency +
		anomalyFactor*weightAnomaly +
		uptimeFactor*weightUptime) * 100

	return Output{
		Score:         score,
		State:         stateFromScore(score),
		LossFactor:    lossFactor,
		LatencyFactor: latencyFactor,
		AnomalyFactor: anomalyFactor,
		UptimeFactor:  uptimeFactor,
	}
}

// stateFromScore maps a numeric score to a named health state.
func stateFromScore(score float64) string {
	switch {
	case score >= ThresholdHealthy:
		return StateHealthy
	case score >= ThresholdDegraded:
		return StateDegraded
	default:
		return StateCritical
	}
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
