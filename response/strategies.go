package response

import (
	"encoding/json"
	"sort"
	"strings"
)

var (
	// root object keys that may hold the item array
	arrayKeys = []string{"segments", "translations", "results", "s"}
	// item keys that may hold the translated text
	textKeys = []string{"text", "translation", "translated", "translatedText", "translated_text", "output", "result"}
	// never used as a fallback text field
	metaKeys = map[string]bool{"id": true, "start": true, "end": true, "language": true}
)

func extractStrict(raw string) []Pair {
	v, ok := decodeLoose(raw)
	if !ok {
		return nil
	}
	return pairsFromValue(v)
}

// extractSalvaged closes a document cut off after its last complete object.
func extractSalvaged(raw string) []Pair {
	t := stripFence(raw)
	if t == "" {
		return nil
	}
	cut := strings.LastIndexByte(t, '}')
	if cut < 0 {
		return nil
	}
	prefix := strings.TrimRight(t[:cut+1], " \t\r\n")

	var candidates []string
	switch t[0] {
	case '{':
		if strings.Contains(prefix, "[") {
			candidates = append(candidates, prefix+"\n  ]\n}")
		}
		candidates = append(candidates, prefix+"\n}")
	case '[':
		candidates = append(candidates, prefix+"\n]")
	}
	for _, c := range candidates {
		var v any
		if json.Unmarshal([]byte(c), &v) == nil {
			if pairs := pairsFromValue(v); len(pairs) > 0 {
				return pairs
			}
		}
	}
	return nil
}

// extractLines reads one JSON value per line, skipping lines that do not parse.
func extractLines(raw string) []Pair {
	var out []Pair
	for _, line := range strings.Split(stripFence(raw), "\n") {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		if s[0] != '{' && s[0] != '[' {
			a, b := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
			if a < 0 || b <= a {
				continue
			}
			s = s[a : b+1]
		}
		var v any
		if json.Unmarshal([]byte(s), &v) != nil {
			continue
		}
		switch item := v.(type) {
		case []any:
			if p, ok := pairFromTuple(item); ok {
				out = append(out, p)
			}
		case map[string]any:
			id := str(item["id"])
			text := firstText(item)
			if id != "" && text != "" {
				out = append(out, Pair{ID: id, Text: text})
			}
		}
	}
	return out
}

// decodeLoose decodes the whole (fence-stripped) payload, or failing that the
// outermost {...} or [...] substring of it.
func decodeLoose(raw string) (any, bool) {
	t := stripFence(raw)
	if t == "" {
		return nil, false
	}
	var v any
	if (t[0] == '{' && t[len(t)-1] == '}') || (t[0] == '[' && t[len(t)-1] == ']') {
		if json.Unmarshal([]byte(t), &v) == nil {
			return v, true
		}
		return nil, false
	}
	for _, br := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		s, e := strings.IndexByte(t, br[0]), strings.LastIndexByte(t, br[1])
		if s >= 0 && e > s {
			if json.Unmarshal([]byte(t[s:e+1]), &v) == nil {
				return v, true
			}
		}
	}
	return nil, false
}

func pairsFromValue(v any) []Pair {
	var items []any
	switch root := v.(type) {
	case []any:
		items = root
	case map[string]any:
		for _, k := range arrayKeys {
			if arr, ok := root[k].([]any); ok {
				items = arr
				break
			}
		}
	}

	var out []Pair
	for _, it := range items {
		switch item := it.(type) {
		case []any:
			if p, ok := pairFromTuple(item); ok {
				out = append(out, p)
			}
		case map[string]any:
			id := str(item["id"])
			text := firstText(item)
			if text == "" {
				text = anyText(item)
			}
			if id != "" && text != "" {
				out = append(out, Pair{ID: id, Text: text})
			}
		}
	}
	return out
}

func pairFromTuple(a []any) (Pair, bool) {
	if len(a) < 2 {
		return Pair{}, false
	}
	id, text := str(a[0]), str(a[1])
	if id == "" || text == "" {
		return Pair{}, false
	}
	return Pair{ID: id, Text: text}, true
}

func firstText(item map[string]any) string {
	for _, k := range textKeys {
		if v, ok := item[k]; ok {
			return str(v)
		}
	}
	return ""
}

// anyText picks the first non-empty string field that is not metadata.
func anyText(item map[string]any) string {
	keys := make([]string, 0, len(item))
	for k := range item {
		if !metaKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := str(item[k]); s != "" {
			return s
		}
	}
	return ""
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// stripFence removes a wrapping ```lang ... ``` markdown fence.
func stripFence(raw string) string {
	t := strings.TrimSpace(raw)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = ""
	}
	if end := strings.LastIndex(t, "```"); end >= 0 {
		t = t[:end]
	}
	return strings.TrimSpace(t)
}
