// Package export renders transcripts and subtitle tracks as SRT, WebVTT and plain text.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/maastricht-university/transcript-pipeline/models"
)

// File is one rendered artifact, named relative to the export directory.
type File struct {
	Name string
	Data []byte
}

func SRT(segs []models.Segment) string {
	var b strings.Builder
	for i, s := range clean(segs) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, clock(s.Start, ','), clock(s.End, ','), s.Text)
	}
	return b.String()
}

func VTT(segs []models.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, s := range clean(segs) {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", clock(s.Start, '.'), clock(s.End, '.'), s.Text)
	}
	return b.String()
}

// Text writes one "[m:ss] text" line per segment.
func Text(segs []models.Segment) string {
	var b strings.Builder
	for _, s := range clean(segs) {
		total := int64(math.Floor(seconds(s.Start)))
		fmt.Fprintf(&b, "[%d:%02d] %s\n", total/60, total%60, s.Text)
	}
	return b.String()
}

// Bundle renders everything available for one media item. Either argument may be nil.
func Bundle(t *models.Transcript, d *models.SubtitleDocument) []File {
	var out []File
	if t != nil && len(clean(t.Segments)) > 0 {
		out = append(out,
			File{Name: "transcript.txt", Data: []byte(Text(t.Segments))},
			File{Name: "transcript.srt", Data: []byte(SRT(t.Segments))},
			File{Name: "transcript.vtt", Data: []byte(VTT(t.Segments))},
		)
	}
	if d == nil {
		return out
	}
	for _, tr := range d.Tracks {
		id := strings.TrimSpace(tr.ID)
		if id == "" || len(clean(tr.Segments)) == 0 {
			continue
		}
		name := "subtitles." + SafeName(id)
		out = append(out,
			File{Name: name + ".srt", Data: []byte(SRT(tr.Segments))},
			File{Name: name + ".vtt", Data: []byte(VTT(tr.Segments))},
		)
	}
	return out
}

// SafeName keeps ASCII letters and digits, ' ', '-', '_', '.' and any
// non-ASCII rune; other characters become '_'.
func SafeName(raw string) string {
	var b strings.Builder
	for _, c := range strings.TrimSpace(raw) {
		switch {
		case c > 0x7f,
			c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == ' ', c == '-', c == '_', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" || strings.Trim(s, ".") == "" {
		return "media"
	}
	return s
}

func clean(segs []models.Segment) []models.Segment {
	out := make([]models.Segment, 0, len(segs))
	for _, s := range segs {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		s.Text = text
		out = append(out, s)
	}
	return out
}

func seconds(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// clock formats HH:MM:SS followed by sep and milliseconds.
func clock(sec float64, sep byte) string {
	ms := int64(math.Round(seconds(sec) * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}
