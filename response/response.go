// Package response turns raw text-generation output into (id, text) pairs.
//
// Models wrap JSON in markdown fences, stop mid-document, rename fields and
// sometimes answer with one JSON value per line. Parse tries a fixed list of
// extraction strategies in order and returns the first that yields anything.
package response

import (
	"errors"
	"fmt"
	"strings"
)

const previewLen = 400

// ErrEmptyContent is returned for blank model output.
var ErrEmptyContent = errors.New("response: empty content")

type Pair struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ParseError means no strategy recovered a single pair.
type ParseError struct {
	Preview string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("translate output missing JSON\nraw (first %d chars):\n%s", previewLen, e.Preview)
}

// Strategy is a pure extraction function. It returns nil when the raw text
// does not have its shape.
type Strategy struct {
	Name    string
	Extract func(raw string) []Pair
}

var strategies = []Strategy{
	{Name: "json", Extract: extractStrict},
	{Name: "salvage", Extract: extractSalvaged},
	{Name: "jsonl", Extract: extractLines},
}

// Strategies returns the extraction strategies in the order Parse tries them.
func Strategies() []Strategy {
	out := make([]Strategy, len(strategies))
	copy(out, strategies)
	return out
}

func Parse(raw string) ([]Pair, error) {
	pairs, _, err := ParseWith(raw)
	return pairs, err
}

// ParseWith is Parse that also reports the name of the winning strategy.
func ParseWith(raw string) ([]Pair, string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, "", ErrEmptyContent
	}
	for _, s := range strategies {
		if pairs := s.Extract(raw); len(pairs) > 0 {
			return pairs, s.Name, nil
		}
	}
	return nil, "", &ParseError{Preview: Preview(raw, previewLen)}
}

// Preview returns at most n runes of the trimmed text.
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
