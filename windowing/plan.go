package windowing

import "github.com/maastricht-university/transcript-pipeline/models"

// MinStepMs keeps the plan finite when the overlap is close to the window length.
const MinStepMs int64 = 1000

// Plan splits [0, totalMs) into windows of windowMs that overlap by overlapMs.
// The last window is clipped to what remains. An unknown (non-positive) total
// yields a single window of windowMs.
func Plan(totalMs, windowMs, overlapMs int64) []models.TimeWindow {
	if windowMs <= 0 {
		windowMs = MinStepMs
	}
	if overlapMs < 0 {
		overlapMs = 0
	}
	if totalMs <= 0 {
		return []models.TimeWindow{{Index: 0, StartMs: 0, DurationMs: windowMs}}
	}

	step := windowMs - overlapMs
	if step < MinStepMs {
		step = MinStepMs
	}

	var out []models.TimeWindow
	for t0 := int64(0); t0 < totalMs; t0 += step {
		d := totalMs - t0
		if d > windowMs {
			d = windowMs
		}
		out = append(out, models.TimeWindow{Index: len(out), StartMs: t0, DurationMs: d})
	}
	return out
}
