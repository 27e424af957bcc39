// Package store persists transcripts and subtitle documents per media item.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maastricht-university/transcript-pipeline/models"
)

var ErrNotFound = errors.New("store: not found")

type Store interface {
	SaveTranscript(ctx context.Context, mediaID string, t *models.Transcript) error
	LoadTranscript(ctx context.Context, mediaID string) (*models.Transcript, error)
	SaveSubtitles(ctx context.Context, mediaID string, d *models.SubtitleDocument) error
	LoadSubtitles(ctx context.Context, mediaID string) (*models.SubtitleDocument, error)
	Close()
}

const (
	kindTranscript = "transcription"
	kindSubtitles  = "subtitles"
)

// ValidateMediaID accepts ids made of ASCII letters, digits, '-' and '_'.
// Media ids end up in file paths, so anything else is rejected.
func ValidateMediaID(id string) error {
	s := strings.TrimSpace(id)
	if s == "" {
		return errors.New("media id is empty")
	}
	if len(s) > 128 {
		return errors.New("media id too long")
	}
	for _, c := range s {
		ok := c == '-' || c == '_' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return fmt.Errorf("invalid media id %q", id)
		}
	}
	return nil
}
