package state

// Classify maps a summary and the most recent outcome to a health tier.
//
// A dropped last probe, or one at or above the questionable latency, is Bad
// regardless of the rolling average. Otherwise the history is Good when the
// average is below the good latency and the drop rate is below the bad drop
// rate, and Questionable in every other case. An empty history is Unknown.
func Classify(summary Summary, last Outcome, hasLast bool, th Thresholds) Health {
	if !hasLast {
		return HealthUnknown
	}
	if ms, ok := last.Latency(); !ok || ms >= th.QuestionableLatencyMs {
		return HealthBad
	}
	if summary.HasAverage &&
		summary.AverageMs < th.GoodLatencyMs &&
		summary.DropRatePercent < th.BadDropRatePercent {
		return HealthGood
	}
	return HealthQuestionable
}
