package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OriginalTrackID  = "original"
	BilingualTrackID = "bilingual"

	KindTranscription = "transcription"
	KindAITranslate   = "ai_translate"
	KindDerived       = "derived"
)

type SubtitleTrack struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Language    string    `json:"language"`
	Kind        string    `json:"kind"`
	GeneratedAt time.Time `json:"generatedAt"`
	Segments    []Segment `json:"segments"`
}

type TranslationMeta struct {
	TargetLang         string    `json:"targetLang"`
	Strategy           string    `json:"strategy"`
	TotalSegments      int       `json:"totalSegments"`
	TranslatedSegments int       `json:"translatedSegments"`
	Coverage           float64   `json:"coverage"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

type SubtitleDocument struct {
	Version     int              `json:"version"`
	MediaID     string           `json:"mediaId"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Tracks      []SubtitleTrack  `json:"tracks"`
	Translation *TranslationMeta `json:"translation,omitempty"`
}

// NewSubtitleDocument seeds a document with the original track built from t.
// Segments without text are dropped and end is never before start.
func NewSubtitleDocument(mediaID string, t *Transcript) *SubtitleDocument {
	now := time.Now().UTC()
	segs := make([]Segment, 0, len(t.Segments))
	for _, s := range t.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		id := strings.TrimSpace(s.ID)
		if id == "" {
			id = "seg-" + uuid.NewString()
		}
		end := s.End
		if end < s.Start {
			end = s.Start
		}
		segs = append(segs, Segment{ID: id, Start: s.Start, End: end, Text: text})
	}
	return &SubtitleDocument{
		Version:     1,
		MediaID:     mediaID,
		GeneratedAt: now,
		Tracks: []SubtitleTrack{{
			ID:          OriginalTrackID,
			Label:       "Original",
			Language:    strings.TrimSpace(t.Language),
			Kind:        KindTranscription,
			GeneratedAt: now,
			Segments:    segs,
		}},
	}
}

func (d *SubtitleDocument) Track(id string) (*SubtitleTrack, bool) {
	for i := range d.Tracks {
		if d.Tracks[i].ID == id {
			return &d.Tracks[i], true
		}
	}
	return nil, false
}

// UpsertTrack replaces the track with the same id or appends it.
func (d *SubtitleDocument) UpsertTrack(t SubtitleTrack) {
	if strings.TrimSpace(t.ID) == "" {
		return
	}
	if existing, ok := d.Track(t.ID); ok {
		*existing = t
		return
	}
	d.Tracks = append(d.Tracks, t)
}

// TranslatedTrackID collapses every Chinese variant onto a single "zh" track.
func TranslatedTrackID(targetLang string) (id, label string) {
	if strings.HasPrefix(targetLang, "zh") {
		return "zh", "中文"
	}
	return targetLang, targetLang
}
