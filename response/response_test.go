package response

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseShapes(t *testing.T) {
	want := []Pair{{"u1", "bonjour"}, {"u2", "monde"}}
	cases := []struct {
		name     string
		raw      string
		strategy string
	}{
		{"pairs array", `[["u1","bonjour"],["u2","monde"]]`, "json"},
		{"object items", `[{"id":"u1","text":"bonjour"},{"id":"u2","translation":"monde"}]`, "json"},
		{"segments root", `{"segments":[{"id":"u1","text":"bonjour"},{"id":"u2","text":"monde"}]}`, "json"},
		{"short root", `{"s":[{"id":"u1","output":"bonjour"},{"id":"u2","result":"monde"}]}`, "json"},
		{"translatedText", `{"translations":[{"id":"u1","translatedText":"bonjour"},{"id":"u2","translated_text":"monde"}]}`, "json"},
		{"fenced", "```json\n[[\"u1\",\"bonjour\"],[\"u2\",\"monde\"]]\n```", "json"},
		{"prose around json", "Here you go:\n[[\"u1\",\"bonjour\"],[\"u2\",\"monde\"]]\nDone.", "json"},
		{"unknown text field", `[{"id":"u1","start":1,"fr":"bonjour"},{"id":"u2","zz":"monde","language":"fr"}]`, "json"},
		{"jsonl", "{\"id\":\"u1\",\"text\":\"bonjour\"}\n\n{\"id\":\"u2\",\"text\":\"monde\"}", "jsonl"},
		{"fenced jsonl", "```\n{\"id\":\"u1\",\"text\":\"bonjour\"}\n[\"u2\",\"monde\"]\n```", "jsonl"},
		{"jsonl with junk", "1. {\"id\":\"u1\",\"text\":\"bonjour\"}\nnot json\n{\"id\":\"u2\",\"text\":\"monde\"}", "jsonl"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, strategy, err := ParseWith(tc.raw)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("pairs = %+v", got)
			}
			if strategy != tc.strategy {
				t.Errorf("strategy = %s, want %s", strategy, tc.strategy)
			}
		})
	}
}

func TestParseSalvagesTruncatedOutput(t *testing.T) {
	full := `{"segments":[{"id":"u1","text":"a"},{"id":"u2","text":"b"},{"id":"u3","text":"c"}]}`
	truncated := full[:strings.Index(full, `{"id":"u3"`)+12]

	whole, err := Parse(full)
	if err != nil {
		t.Fatal(err)
	}
	got, strategy, err := ParseWith(truncated)
	if err != nil {
		t.Fatal(err)
	}
	if strategy != "salvage" {
		t.Errorf("strategy = %s", strategy)
	}
	if !reflect.DeepEqual(got, whole[:2]) {
		t.Errorf("salvaged %+v, want %+v", got, whole[:2])
	}

	arr := `[{"id":"u1","text":"a"},{"id":"u2","text":"b"},{"id":"u3","te`
	got, err = Parse("```json\n" + arr)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].ID != "u2" {
		t.Errorf("salvaged array = %+v", got)
	}
}

func TestParseFailures(t *testing.T) {
	if _, err := Parse("  \n"); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("blank: err = %v", err)
	}

	raw := strings.Repeat("no json here ", 100)
	_, err := Parse(raw)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
	if n := len([]rune(pe.Preview)); n != 400 {
		t.Errorf("preview has %d runes", n)
	}

	if _, err := Parse(`{"segments":[]}`); !errors.As(err, &pe) {
		t.Errorf("empty array: err = %v", err)
	}
}

func TestStrategiesOrder(t *testing.T) {
	var names []string
	for _, s := range Strategies() {
		names = append(names, s.Name)
	}
	if want := []string{"json", "salvage", "jsonl"}; !reflect.DeepEqual(names, want) {
		t.Errorf("strategies = %v", names)
	}
}

func TestValidate(t *testing.T) {
	latin := []Pair{{"u1", "hello"}, {"u2", "world"}, {"u3", "again"}}
	cases := []struct {
		name     string
		pairs    []Pair
		lang     string
		expected int
		bad      bool
	}{
		{"zh without han", latin, "zh-CN", 3, true},
		{"zh with han", append([]Pair{{"u0", "你好"}}, latin...), "zh", 4, false},
		{"small batch skipped", latin[:2], "zh", 2, false},
		{"ja kana", []Pair{{"u1", "こんにちは"}}, "ja", 3, false},
		{"ko latin", latin, "ko", 3, true},
		{"non cjk target", latin, "fr", 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.pairs, tc.lang, tc.expected)
			var ve *ValidationError
			if got := errors.As(err, &ve); got != tc.bad {
				t.Errorf("Validate err = %v, want failure %v", err, tc.bad)
			}
		})
	}
}
