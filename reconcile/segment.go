package reconcile

import (
	"strings"
	"unicode/utf8"

	"github.com/maastricht-university/transcript-pipeline/models"
)

var sentenceEnd = map[string]bool{
	"。": true, "！": true, "？": true, "；": true, "…": true, "……": true,
	".": true, "!": true, "?": true, ";": true,
}

func (r *Reconciler) thresholds(langHint string) Thresholds {
	hint := strings.ToLower(strings.TrimSpace(langHint))
	for _, l := range r.cfg.SpacedLanguages {
		if hint == strings.ToLower(l) {
			return r.cfg.Spaced
		}
	}
	return r.cfg.Dense
}

// segment cuts the merged stream on sentence punctuation, on long pauses once
// the segment has some substance, and on a hard length ceiling.
func (r *Reconciler) segment(tokens []models.MergedToken, langHint string) []models.Span {
	if len(tokens) == 0 {
		return nil
	}
	th := r.thresholds(langHint)

	var (
		out     []models.Span
		cur     strings.Builder
		curLen  int
		startMs int64
		open    bool
	)
	for i, tok := range tokens {
		if !open {
			startMs = tok.GlobalMs
			open = true
		}
		cur.WriteString(tok.Text)
		curLen += utf8.RuneCountInString(tok.Text)

		var gap int64
		if i+1 < len(tokens) {
			gap = tokens[i+1].GlobalMs - tok.GlobalMs
		}

		split := sentenceEnd[strings.TrimSpace(tok.Text)] ||
			(gap > th.GapMs && curLen >= r.cfg.MinSplitLen) ||
			curLen >= th.MaxLen
		if !split {
			continue
		}
		if txt := strings.TrimSpace(cur.String()); txt != "" {
			out = append(out, models.Span{StartMs: startMs, EndMs: tok.GlobalMs, Text: txt})
		}
		cur.Reset()
		curLen = 0
		open = false
	}

	if txt := strings.TrimSpace(cur.String()); txt != "" {
		last := tokens[len(tokens)-1].GlobalMs
		out = append(out, models.Span{StartMs: startMs, EndMs: last, Text: txt})
	}
	return out
}
