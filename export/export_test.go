package export

import (
	"math"
	"testing"

	"github.com/maastricht-university/transcript-pipeline/models"
)

var segs = []models.Segment{
	{ID: "seg-1", Start: 0, End: 1.5, Text: " Hello there. "},
	{ID: "seg-2", Start: 2, End: 1, Text: "   "},
	{ID: "seg-3", Start: 3723.0456, End: 3725, Text: "Later"},
}

func TestSRT(t *testing.T) {
	want := "1\n00:00:00,000 --> 00:00:01,500\nHello there.\n\n" +
		"2\n01:02:03,046 --> 01:02:05,000\nLater\n\n"
	if got := SRT(segs); got != want {
		t.Errorf("SRT =\n%q\nwant\n%q", got, want)
	}
}

func TestVTT(t *testing.T) {
	want := "WEBVTT\n\n" +
		"00:00:00.000 --> 00:00:01.500\nHello there.\n\n" +
		"01:02:03.046 --> 01:02:05.000\nLater\n\n"
	if got := VTT(segs); got != want {
		t.Errorf("VTT =\n%q\nwant\n%q", got, want)
	}
}

func TestText(t *testing.T) {
	want := "[0:00] Hello there.\n[62:03] Later\n"
	if got := Text(segs); got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}

func TestClockClampsBadInput(t *testing.T) {
	for _, v := range []float64{-3, math.NaN(), math.Inf(1)} {
		if got := clock(v, ','); got != "00:00:00,000" {
			t.Errorf("clock(%v) = %q", v, got)
		}
	}
}

func TestBundle(t *testing.T) {
	tr := &models.Transcript{Segments: segs, Language: "en"}
	doc := models.NewSubtitleDocument("media-1", tr)
	doc.UpsertTrack(models.SubtitleTrack{ID: "zh/cn", Segments: []models.Segment{{Start: 0, End: 1, Text: "你好"}}})
	doc.UpsertTrack(models.SubtitleTrack{ID: "empty"})

	var names []string
	for _, f := range Bundle(tr, doc) {
		names = append(names, f.Name)
	}
	want := []string{
		"transcript.txt", "transcript.srt", "transcript.vtt",
		"subtitles.original.srt", "subtitles.original.vtt",
		"subtitles.zh_cn.srt", "subtitles.zh_cn.vtt",
	}
	if len(names) != len(want) {
		t.Fatalf("files = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("file %d = %q, want %q", i, names[i], want[i])
		}
	}
	if len(Bundle(nil, nil)) != 0 {
		t.Error("empty bundle not empty")
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"Lecture 1: Intro": "Lecture 1_ Intro",
		"中文":               "中文",
		"  ":               "media",
		"..":               "media",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}
