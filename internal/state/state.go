package state

import "strconv"

// NotReturnedLabel is the history label used for probes that never came back.
const NotReturnedLabel = "Not Returned"

// Health represents the qualitative connection state.
type Health string

const (
	// HealthUnknown is reported while the history holds no samples.
	HealthUnknown      Health = "UNKNOWN"
	HealthGood         Health = "GOOD"
	HealthQuestionable Health = "QUESTIONABLE"
	HealthBad          Health = "BAD"
)

// Display collapses Unknown into Questionable for surfaces that only
// have three indicators.
func (h Health) Display() Health {
	if h == HealthUnknown {
		return HealthQuestionable
	}
	return h
}

// Outcome is the immutable result of a single probe: either a returned
// round trip with its latency, or a failure.
type Outcome struct {
	latencyMs int
	ok        bool
}

// Succeeded records a returned probe. Negative latencies are clamped to zero.
func Succeeded(latencyMs int) Outcome {
	if latencyMs < 0 {
		latencyMs = 0
	}
	return Outcome{latencyMs: latencyMs, ok: true}
}

// Failed records a probe that errored or timed out.
func Failed() Outcome {
	return Outcome{}
}

// Latency returns the round trip in milliseconds and whether the probe returned.
func (o Outcome) Latency() (int, bool) {
	return o.latencyMs, o.ok
}

// Succeeded reports whether the probe returned.
func (o Outcome) Succeeded() bool {
	return o.ok
}

// Label is the display string used by history views.
func (o Outcome) Label() string {
	if !o.ok {
		return NotReturnedLabel
	}
	return strconv.Itoa(o.latencyMs)
}

// Thresholds configures the classifier.
type Thresholds struct {
	GoodLatencyMs         int
	QuestionableLatencyMs int
	BadDropRatePercent    int
}

// Summary is the aggregate computed from a history.
type Summary struct {
	AverageMs       int
	HasAverage      bool
	DropRatePercent int
	Samples         int
}

// AverageText is the human readable average, e.g. "Average Latency: 42 ms".
func (s Summary) AverageText() string {
	if !s.HasAverage {
		return "Average Latency: No Returned Pings"
	}
	return "Average Latency: " + strconv.Itoa(s.AverageMs) + " ms"
}

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	History []Outcome
	Summary Summary
	Health  Health
}

// Last returns the most recent outcome, if any.
func (s Snapshot) Last() (Outcome, bool) {
	if len(s.History) == 0 {
		return Outcome{}, false
	}
	return s.History[len(s.History)-1], true
}

// Labels returns the history labels oldest first.
func (s Snapshot) Labels() []string {
	labels := make([]string, len(s.History))
	for i, o := range s.History {
		labels[i] = o.Label()
	}
	return labels
}
