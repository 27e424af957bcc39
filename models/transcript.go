package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type Segment struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"` // sec
	End   float64 `json:"end"`   // sec
	Text  string  `json:"text"`
}

type Transcript struct {
	ID          string    `json:"id,omitempty"`
	MediaID     string    `json:"mediaId,omitempty"`
	Segments    []Segment `json:"segments"`
	Language    string    `json:"language"`
	Model       string    `json:"model"`
	WordCount   int       `json:"wordCount"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// SegmentsFromMs numbers segments seg-1..seg-N and converts millisecond bounds to seconds.
func SegmentsFromMs(spans []Span) []Segment {
	out := make([]Segment, 0, len(spans))
	for i, s := range spans {
		end := s.EndMs
		if end < s.StartMs {
			end = s.StartMs
		}
		out = append(out, Segment{
			ID:    fmt.Sprintf("seg-%d", i+1),
			Start: float64(s.StartMs) / 1000,
			End:   float64(end) / 1000,
			Text:  s.Text,
		})
	}
	return out
}

// Span is a segment still in millisecond coordinates.
type Span struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// CountWords counts whitespace separated words, falling back to the
// non-whitespace rune count when there are none.
func CountWords(segs []Segment) int {
	words, chars := 0, 0
	for _, s := range segs {
		words += len(strings.Fields(s.Text))
		for _, r := range s.Text {
			if !unicode.IsSpace(r) {
				chars++
			}
		}
	}
	if words > 0 {
		return words
	}
	return chars
}
