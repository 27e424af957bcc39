package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/store"
	"github.com/maastricht-university/transcript-pipeline/translate"
)

const bilingualLabel = "双语"

// ensureSubtitles loads the subtitle document, or builds and stores one from
// the transcript when none exists yet.
func (p *Pipeline) ensureSubtitles(ctx context.Context, mediaID string) (*models.SubtitleDocument, error) {
	doc, err := p.deps.Store.LoadSubtitles(ctx, mediaID)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load subtitles: %w", err)
	}
	tr, err := p.deps.Store.LoadTranscript(ctx, mediaID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("media %s has no transcript yet", mediaID)
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	doc = models.NewSubtitleDocument(mediaID, tr)
	if err := p.deps.Store.SaveSubtitles(ctx, mediaID, doc); err != nil {
		return nil, fmt.Errorf("save subtitles: %w", err)
	}
	return doc, nil
}

// applyTranslation upserts the translated and bilingual tracks and records
// coverage on the document.
func applyTranslation(doc *models.SubtitleDocument, srcLang string, opts translate.Options, res *translate.Result) {
	now := time.Now().UTC()
	target := opts.TargetLang
	id, label := models.TranslatedTrackID(target)

	doc.UpsertTrack(models.SubtitleTrack{
		ID:          id,
		Label:       label,
		Language:    target,
		Kind:        models.KindAITranslate,
		GeneratedAt: now,
		Segments:    res.Translated,
	})
	doc.UpsertTrack(models.SubtitleTrack{
		ID:          models.BilingualTrackID,
		Label:       bilingualLabel,
		Language:    srcLang + "+" + target,
		Kind:        models.KindDerived,
		GeneratedAt: now,
		Segments:    res.Bilingual,
	})
	doc.GeneratedAt = now
	doc.Translation = &models.TranslationMeta{
		TargetLang:         target,
		Strategy:           res.Strategy,
		TotalSegments:      res.Total,
		TranslatedSegments: res.TranslatedCount,
		Coverage:           res.Coverage,
		GeneratedAt:        now,
	}
}
