package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/maastricht-university/transcript-pipeline/models"
)

// File keeps one directory per media item under root/media.
type File struct {
	root string
}

func NewFile(root string) (*File, error) {
	dir := filepath.Join(root, "media")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &File{root: root}, nil
}

func (s *File) MediaDir(mediaID string) string {
	return filepath.Join(s.root, "media", mediaID)
}

func (s *File) path(mediaID, kind string) (string, error) {
	if err := ValidateMediaID(mediaID); err != nil {
		return "", err
	}
	return filepath.Join(s.MediaDir(mediaID), kind+".json"), nil
}

func (s *File) SaveTranscript(_ context.Context, mediaID string, t *models.Transcript) error {
	p, err := s.path(mediaID, kindTranscript)
	if err != nil {
		return err
	}
	return writeJSON(p, t)
}

func (s *File) LoadTranscript(_ context.Context, mediaID string) (*models.Transcript, error) {
	p, err := s.path(mediaID, kindTranscript)
	if err != nil {
		return nil, err
	}
	var t models.Transcript
	if err := readJSON(p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *File) SaveSubtitles(_ context.Context, mediaID string, d *models.SubtitleDocument) error {
	p, err := s.path(mediaID, kindSubtitles)
	if err != nil {
		return err
	}
	return writeJSON(p, d)
}

func (s *File) LoadSubtitles(_ context.Context, mediaID string) (*models.SubtitleDocument, error) {
	p, err := s.path(mediaID, kindSubtitles)
	if err != nil {
		return nil, err
	}
	var d models.SubtitleDocument
	if err := readJSON(p, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *File) Close() {}

// writeJSON writes to a temp file next to path and renames it into place, so
// readers see either the old or the new document.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
