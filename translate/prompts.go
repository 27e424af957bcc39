package translate

import (
	"fmt"
	"strings"
)

// Format is one output-format instruction given to the model.
type Format struct {
	Name   string
	Prompt func(lang, payload string) string
}

// Formats are tried in this order for every range; the line-oriented one
// survives truncation best.
var Formats = []Format{
	{Name: "jsonl", Prompt: jsonlPrompt},
	{Name: "pairs", Prompt: pairsPrompt},
	{Name: "object", Prompt: objectPrompt},
}

func languageLabel(lang string) string {
	if strings.HasPrefix(strings.ToLower(lang), "zh") {
		return "Simplified Chinese"
	}
	return lang
}

func jsonlPrompt(lang, payload string) string {
	return fmt.Sprintf(`You are a translation engine. Translate each item to %s.
Output format: JSONL (one JSON object per line).
Each line MUST be: {"id":"...","text":"..."}
Rules:
- Output ONLY JSONL lines. No markdown, no extra text.
- Keep ids unchanged. Do NOT add/remove items.
- Translate naturally.

Input JSON array:
%s
`, languageLabel(lang), payload)
}

func pairsPrompt(lang, payload string) string {
	return fmt.Sprintf(`Translate to %s. Output ONLY JSON. No markdown.
Format: [["id","text"], ...] (array of 2-item arrays).
Keep ids unchanged. Do NOT add/remove items.

Input:
%s
`, languageLabel(lang), payload)
}

func objectPrompt(lang, payload string) string {
	return fmt.Sprintf(`Translate to %s. Output ONLY JSON object (no markdown).
Schema: {"segments":[{"id":string,"text":string}]}
Keep ids unchanged. Do NOT add/remove items.

Input:
%s
`, languageLabel(lang), payload)
}
