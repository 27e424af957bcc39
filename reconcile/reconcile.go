// Package reconcile merges per-window recognition output into one ordered,
// deduplicated transcript.
//
// Windows overlap, so every moment of audio is decoded at least once away from a
// window edge. Tokens near shared edges are dropped, the survivors are placed on
// the global timeline, sorted, deduplicated and finally re-segmented into
// sentence-like units.
package reconcile

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/maastricht-university/transcript-pipeline/models"
)

// ErrNoUsableInput is returned when no window produced any tokens or text.
var ErrNoUsableInput = errors.New("reconcile: no usable recognition input")

type Reconciler struct {
	cfg Config
}

func New(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg.withDefaults()}
}

// Merge reconciles results[i], recognized over windows[i], into transcript
// segments. langHint selects the re-segmentation thresholds and may be empty.
func (r *Reconciler) Merge(windows []models.TimeWindow, results []models.RecognitionResult, langHint string) ([]models.Segment, error) {
	spans := r.mergeSpans(windows, results, langHint)
	if len(spans) == 0 {
		return nil, ErrNoUsableInput
	}
	return models.SegmentsFromMs(spans), nil
}

func (r *Reconciler) mergeSpans(windows []models.TimeWindow, results []models.RecognitionResult, langHint string) []models.Span {
	tokens := r.place(windows, results)
	if len(tokens) == 0 {
		return fallbackSpans(windows, results)
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].GlobalMs != tokens[j].GlobalMs {
			return tokens[i].GlobalMs < tokens[j].GlobalMs
		}
		return tokens[i].MarginMs > tokens[j].MarginMs
	})

	return r.segment(r.dedup(tokens), langHint)
}

// place projects every window's tokens onto the global timeline, dropping the
// ones that sit inside the edge guard of a shared boundary.
func (r *Reconciler) place(windows []models.TimeWindow, results []models.RecognitionResult) []models.MergedToken {
	var all []models.MergedToken
	n := len(windows)
	for idx, res := range results {
		if idx >= n {
			break
		}
		w := windows[idx]

		keepLeft := r.cfg.EdgeGuardMs
		if idx == 0 {
			keepLeft = 0
		}
		keepRight := w.DurationMs
		if idx+1 < n {
			keepRight = w.DurationMs - r.cfg.EdgeGuardMs
		}
		guard := w.DurationMs > 0 && keepRight > keepLeft+minGuardedSpanMs

		for _, tok := range r.project(res) {
			rel := tok.ms
			if w.DurationMs > 0 && rel > w.DurationMs {
				rel = w.DurationMs
			}
			if guard && (rel < keepLeft || rel > keepRight) {
				continue
			}
			var margin int64
			if w.DurationMs > 0 {
				margin = rel
				if right := w.DurationMs - rel; right < margin {
					margin = right
				}
			}
			all = append(all, models.MergedToken{
				GlobalMs: w.StartMs + rel,
				Text:     tok.text,
				MarginMs: margin,
			})
		}
	}
	return all
}

type relToken struct {
	ms   int64
	text string
}

// project returns window-relative millisecond timestamps for each usable token.
// Tokens past the end of the timestamp array are extrapolated so none are lost.
func (r *Reconciler) project(res models.RecognitionResult) []relToken {
	if len(res.Tokens) == 0 {
		return nil
	}
	var lastMs int64
	if n := len(res.Timestamps); n > 0 {
		lastMs = secToMs(res.Timestamps[n-1])
	}

	out := make([]relToken, 0, len(res.Tokens))
	var prev int64
	for i, raw := range res.Tokens {
		tok, ok := normalizeToken(raw)
		if !ok {
			continue
		}
		var ms int64
		if i < len(res.Timestamps) {
			ms = secToMs(res.Timestamps[i])
		} else {
			extra := int64(i-len(res.Timestamps)) + 1
			ms = lastMs + extra*r.cfg.ExtrapolateStepMs
		}
		if ms < prev {
			ms = prev
		}
		if ms < 0 {
			ms = 0
		}
		prev = ms
		out = append(out, relToken{ms: ms, text: tok})
	}
	return out
}

// dedup drops a token identical to the last kept one within DedupMs of it.
func (r *Reconciler) dedup(sorted []models.MergedToken) []models.MergedToken {
	out := make([]models.MergedToken, 0, len(sorted))
	for _, t := range sorted {
		if k := len(out); k > 0 {
			last := out[k-1]
			if t.Text == last.Text && abs64(t.GlobalMs-last.GlobalMs) <= r.cfg.DedupMs {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func fallbackSpans(windows []models.TimeWindow, results []models.RecognitionResult) []models.Span {
	var out []models.Span
	for idx, res := range results {
		if idx >= len(windows) {
			break
		}
		text := strings.TrimSpace(res.Text)
		if text == "" {
			continue
		}
		w := windows[idx]
		d := w.DurationMs
		if d < 0 {
			d = 0
		}
		out = append(out, models.Span{StartMs: w.StartMs, EndMs: w.StartMs + d, Text: text})
	}
	return out
}

// normalizeToken drops blanks and recognizer control tokens such as <|en|>.
func normalizeToken(tok string) (string, bool) {
	t := strings.TrimSpace(tok)
	if t == "" {
		return "", false
	}
	if strings.HasPrefix(t, "<|") && strings.HasSuffix(t, "|>") {
		return "", false
	}
	return tok, true
}

func secToMs(s float64) int64 {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return int64(math.Round(s * 1000))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
