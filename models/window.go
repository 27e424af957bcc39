package models

// TimeWindow is one overlapping slice of the source timeline, in milliseconds.
type TimeWindow struct {
	Index      int   `json:"index"`
	StartMs    int64 `json:"start_ms"`
	DurationMs int64 `json:"duration_ms"`
}

// EndMs is the exclusive end of the window.
func (w TimeWindow) EndMs() int64 { return w.StartMs + w.DurationMs }

// RecognitionResult is what the recognizer returned for a single window.
// Timestamps are seconds relative to the window start and may be shorter than Tokens.
type RecognitionResult struct {
	Language   string    `json:"language"`
	Text       string    `json:"text"`
	Tokens     []string  `json:"tokens"`
	Timestamps []float64 `json:"timestamps"`
}

// MergedToken is a token placed on the global timeline during reconciliation.
type MergedToken struct {
	GlobalMs int64
	Text     string
	MarginMs int64 // distance to the nearest edge of the originating window
}
