// Package orchestrator runs transcription, subtitle translation and export
// jobs for one media item, reporting progress and persisting the results.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	cfg "github.com/maastricht-university/transcript-pipeline/config"
	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/progress"
	"github.com/maastricht-university/transcript-pipeline/reconcile"
	"github.com/maastricht-university/transcript-pipeline/store"
	"github.com/maastricht-university/transcript-pipeline/transcribe"
	"github.com/maastricht-university/transcript-pipeline/translate"
)

type Deps struct {
	Recognizer transcribe.Recognizer
	Generator  translate.Generator
	Store      store.Store
	Sink       progress.Sink           // optional
	Accel      *transcribe.Accelerator // optional, built from services.recognizer.provider
	Log        logrus.FieldLogger      // optional
}

type Pipeline struct {
	cfg   *cfg.Root
	deps  Deps
	rc    *reconcile.Reconciler
	accel *transcribe.Accelerator
	log   logrus.FieldLogger
}

func NewPipeline(c *cfg.Root, d Deps) *Pipeline {
	if c == nil {
		c = cfg.Default()
	}
	log := d.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	accel := d.Accel
	if accel == nil {
		accel = transcribe.NewAccelerator(c.Services.Recognizer.Provider)
	}
	return &Pipeline{
		cfg:   c,
		deps:  d,
		rc:    reconcile.New(c.Reconcile),
		accel: accel,
		log:   log,
	}
}

func (p *Pipeline) reporter(mediaID string, kind models.JobKind) *progress.Reporter {
	job := progress.JobInfo{JobID: jobID(), MediaID: mediaID, Kind: kind}
	return progress.NewReporter(p.deps.Sink, job, p.cfg.ProgressOptions(p.log))
}

// finish emits the terminal event for err and passes it through.
func finish(rep *progress.Reporter, err error, okMsg string) error {
	if err != nil {
		rep.Fail(err)
		return err
	}
	rep.Succeed(okMsg)
	return nil
}

// Transcribe recognizes args.Source window by window and stores the transcript.
func (p *Pipeline) Transcribe(ctx context.Context, args TranscribeArgs) (*models.Transcript, error) {
	mediaID := strings.TrimSpace(args.MediaID)
	if err := store.ValidateMediaID(mediaID); err != nil {
		return nil, err
	}
	if p.deps.Recognizer == nil {
		return nil, fmt.Errorf("transcribe: no recognizer configured")
	}
	rep := p.reporter(mediaID, models.JobTranscribe)
	log := p.log.WithFields(logrus.Fields{"job_id": rep.Job().JobID, "media_id": mediaID})
	rep.Stage(0, "transcribing")

	tr, err := p.transcribe(ctx, mediaID, args, rep, log)
	if err := finish(rep, err, fmt.Sprintf("transcription finished (%d segments)", segmentCount(tr))); err != nil {
		log.WithError(err).Error("transcription failed")
		return nil, err
	}
	return tr, nil
}

func (p *Pipeline) transcribe(ctx context.Context, mediaID string, args TranscribeArgs, rep *progress.Reporter, log logrus.FieldLogger) (*models.Transcript, error) {
	t := transcribe.New(p.deps.Recognizer, p.rc, p.accel, p.cfg.TranscribeOptions(), log)
	tr, err := t.Run(ctx, transcribe.Request{
		MediaID:    mediaID,
		Source:     args.Source,
		DurationMs: args.DurationMs,
		Language:   args.Language,
	}, rep)
	if err != nil {
		return nil, err
	}
	rep.Stage(0.95, "saving transcript")
	if err := p.deps.Store.SaveTranscript(ctx, mediaID, tr); err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}
	return tr, nil
}

// Translate adds a translated track and a bilingual track to the media's
// subtitle document, creating the document from the transcript when needed.
func (p *Pipeline) Translate(ctx context.Context, args TranslateArgs) (*models.SubtitleDocument, error) {
	mediaID := strings.TrimSpace(args.MediaID)
	if err := store.ValidateMediaID(mediaID); err != nil {
		return nil, err
	}
	if p.deps.Generator == nil {
		return nil, fmt.Errorf("translate: no text generator configured")
	}
	opts := p.cfg.TranslateOptions(strings.ToLower(strings.TrimSpace(args.TargetLang)))
	if strings.TrimSpace(opts.TargetLang) == "" {
		return nil, fmt.Errorf("translate: target language is empty")
	}

	doc, err := p.ensureSubtitles(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	rep := p.reporter(mediaID, models.JobSubtitle)
	log := p.log.WithFields(logrus.Fields{"job_id": rep.Job().JobID, "media_id": mediaID, "target": opts.TargetLang})
	rep.Stage(0, "translating subtitles")

	err = p.translate(ctx, doc, opts, rep, log)
	if err := finish(rep, err, "subtitle translation finished"); err != nil {
		log.WithError(err).Error("subtitle translation failed")
		return nil, err
	}
	return doc, nil
}

func (p *Pipeline) translate(ctx context.Context, doc *models.SubtitleDocument, opts translate.Options, rep *progress.Reporter, log logrus.FieldLogger) error {
	orig, ok := doc.Track(models.OriginalTrackID)
	if !ok {
		return fmt.Errorf("missing original subtitle track")
	}
	if len(orig.Segments) == 0 {
		return fmt.Errorf("original subtitle track is empty")
	}
	units := translate.UnitsFromSegments(orig.Segments)
	if len(units) == 0 {
		return fmt.Errorf("original track has no usable segments")
	}
	srcLang := orig.Language

	res, err := translate.New(p.deps.Generator, opts, log).Translate(ctx, units, rep)
	if err != nil {
		return err
	}
	if res.Coverage < 1 {
		log.WithFields(logrus.Fields{"missing": len(res.Missing), "coverage": res.Coverage}).
			WithError(res.LastErr).Warn("partial translation, missing segments keep their source text")
	}
	applyTranslation(doc, srcLang, opts, res)

	rep.Stage(0.97, "saving subtitles")
	if err := p.deps.Store.SaveSubtitles(ctx, doc.MediaID, doc); err != nil {
		return fmt.Errorf("save subtitles: %w", err)
	}
	return nil
}

func jobID() string {
	if id, err := uuid.NewV7(); err == nil {
		return "job-" + id.String()
	}
	return "job-" + uuid.NewString()
}

func segmentCount(t *models.Transcript) int {
	if t == nil {
		return 0
	}
	return len(t.Segments)
}
