package response

import (
	"fmt"
	"strings"
	"unicode"
)

// minExpectedForScriptCheck is the smallest batch the script check applies to;
// a couple of names or numbers legitimately stay in Latin script.
const minExpectedForScriptCheck = 3

// ValidationError means the pairs parsed but do not look like the target language.
type ValidationError struct {
	TargetLang string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("translate output does not look like %s: %s", e.TargetLang, e.Reason)
}

// scriptsFor returns the scripts expected in text of the given language, or nil
// when the language is not checked.
func scriptsFor(lang string) []*unicode.RangeTable {
	l := strings.ToLower(strings.TrimSpace(lang))
	switch {
	case strings.HasPrefix(l, "zh"):
		return []*unicode.RangeTable{unicode.Han}
	case strings.HasPrefix(l, "ja"):
		return []*unicode.RangeTable{unicode.Han, unicode.Hiragana, unicode.Katakana}
	case strings.HasPrefix(l, "ko"):
		return []*unicode.RangeTable{unicode.Hangul}
	}
	return nil
}

// Validate rejects output for a CJK target that contains no character of the
// target script, once at least three items were requested.
func Validate(pairs []Pair, targetLang string, expected int) error {
	tables := scriptsFor(targetLang)
	if tables == nil || expected < minExpectedForScriptCheck {
		return nil
	}
	for _, p := range pairs {
		for _, c := range p.Text {
			if unicode.IsOneOf(tables, c) {
				return nil
			}
		}
	}
	return &ValidationError{TargetLang: targetLang, Reason: fmt.Sprintf("no %s script in %d items", targetLang, len(pairs))}
}
