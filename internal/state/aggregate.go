package state

import "math"

// Aggregate computes average latency over returned probes and the drop rate
// over all probes. It keeps no state between calls.
func Aggregate(history []Outcome) Summary {
	summary := Summary{Samples: len(history)}
	if len(history) == 0 {
		return summary
	}

	var sum, returned, dropped int
	for _, o := range history {
		ms, ok := o.Latency()
		if !ok {
			dropped++
			continue
		}
		sum += ms
		returned++
	}

	if returned > 0 {
		summary.AverageMs = int(math.Round(float64(sum) / float64(returned)))
		summary.HasAverage = true
	}
	summary.DropRatePercent = int(math.Round(float64(dropped) * 100 / float64(len(history))))
	return summary
}
