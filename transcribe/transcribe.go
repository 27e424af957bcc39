// Package transcribe runs the windowed recognition pass over one media file
// and reconciles the per-window output into a transcript.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/reconcile"
	"github.com/maastricht-university/transcript-pipeline/windowing"
)

const AutoLanguage = "auto"

type RecognizeOptions struct {
	Language string // "auto" lets the recognizer detect it
	Provider string
}

// Recognizer decodes one window of the source audio.
type Recognizer interface {
	Recognize(ctx context.Context, source string, w models.TimeWindow, opts RecognizeOptions) (models.RecognitionResult, error)
}

type Progress interface {
	Update(progress float64, message string)
	Stage(progress float64, message string)
}

type Options struct {
	WindowMs  int64
	OverlapMs int64
	Model     string
}

type Request struct {
	MediaID    string
	Source     string
	DurationMs int64
	Language   string
}

type Transcriber struct {
	rec   Recognizer
	rc    *reconcile.Reconciler
	accel *Accelerator
	opts  Options
	log   logrus.FieldLogger
}

func New(rec Recognizer, rc *reconcile.Reconciler, accel *Accelerator, opts Options, log logrus.FieldLogger) *Transcriber {
	if opts.WindowMs <= 0 {
		opts.WindowMs = 45_000
	}
	if opts.OverlapMs < 0 || opts.OverlapMs >= opts.WindowMs {
		opts.OverlapMs = 0
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if rc == nil {
		rc = reconcile.New(reconcile.Config{})
	}
	return &Transcriber{rec: rec, rc: rc, accel: accel, opts: opts, log: log}
}

// progress bands for the two recognition passes
var (
	firstPass  = band{lo: 0.28, width: 0.30}
	secondPass = band{lo: 0.31, width: 0.55}
)

type band struct{ lo, width float64 }

func (t *Transcriber) Run(ctx context.Context, req Request, rep Progress) (*models.Transcript, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, fmt.Errorf("transcribe: empty source")
	}
	lang := strings.ToLower(strings.TrimSpace(req.Language))
	auto := lang == "" || lang == AutoLanguage
	if auto {
		lang = AutoLanguage
	}
	log := t.log.WithFields(logrus.Fields{"media_id": req.MediaID, "language": lang})

	windows := windowing.Plan(req.DurationMs, t.opts.WindowMs, t.opts.OverlapMs)
	stage(rep, firstPass.lo, fmt.Sprintf("recognizing (chunks=%d)", len(windows)))
	log.WithField("windows", len(windows)).Info("recognition started")

	results, err := t.recognizeAll(ctx, req.Source, windows, lang, rep, firstPass)
	if err != nil {
		return nil, err
	}

	var locked string
	if auto {
		if dom, ok := t.rc.DominantLanguage(results); ok {
			locked = dom
			stage(rep, secondPass.lo, fmt.Sprintf("dominant language %s detected, re-recognizing", dom))
			log.WithField("locked", dom).Info("language lock-in")
			results, err = t.recognizeAll(ctx, req.Source, windows, dom, rep, secondPass)
			if err != nil {
				return nil, err
			}
		}
	}

	hint := locked
	if hint == "" && !auto {
		hint = lang
	}
	stage(rep, 0.9, "merging windows")
	segs, err := t.rc.Merge(windows, results, hint)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", req.MediaID, err)
	}

	tr := &models.Transcript{
		ID:          newID(),
		MediaID:     req.MediaID,
		Segments:    segs,
		Language:    overallLanguage(locked, lang, results),
		Model:       t.opts.Model,
		WordCount:   models.CountWords(segs),
		GeneratedAt: time.Now().UTC(),
	}
	log.WithFields(logrus.Fields{"segments": len(segs), "words": tr.WordCount}).Info("transcript ready")
	return tr, nil
}

func (t *Transcriber) recognizeAll(ctx context.Context, source string, windows []models.TimeWindow, lang string, rep Progress, b band) ([]models.RecognitionResult, error) {
	out := make([]models.RecognitionResult, 0, len(windows))
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := t.recognize(ctx, source, w, lang, rep, b.lo)
		if err != nil {
			return nil, fmt.Errorf("recognize window %d (%d ms): %w", w.Index, w.StartMs, err)
		}
		out = append(out, res)
		n := len(windows)
		update(rep, b.lo+b.width*float64(i+1)/float64(n), fmt.Sprintf("recognizing %d/%d", i+1, n))
	}
	return out, nil
}

// recognize runs one window, retrying once on the CPU when the preferred
// provider turns out to be missing its native dependencies.
func (t *Transcriber) recognize(ctx context.Context, source string, w models.TimeWindow, lang string, rep Progress, p float64) (models.RecognitionResult, error) {
	provider := t.accel.Provider()
	res, err := t.rec.Recognize(ctx, source, w, RecognizeOptions{Language: lang, Provider: provider})
	if err == nil {
		if provider != CPUProvider {
			t.accel.MarkAvailable()
		}
		return res, nil
	}
	if provider == CPUProvider || !IsMissingAccelerator(err) {
		return res, err
	}
	if t.accel.MarkUnavailable() {
		t.log.WithError(err).WithField("provider", provider).Warn("accelerator unavailable, switching to cpu")
		stage(rep, p, fmt.Sprintf("%s runtime unavailable, switched to cpu", provider))
	}
	return t.rec.Recognize(ctx, source, w, RecognizeOptions{Language: lang, Provider: CPUProvider})
}

// overallLanguage prefers the locked language, then an explicit request, then
// the first concrete language any window reported.
func overallLanguage(locked, requested string, results []models.RecognitionResult) string {
	if locked != "" {
		return locked
	}
	if requested != AutoLanguage {
		return requested
	}
	for _, r := range results {
		if l := strings.TrimSpace(r.Language); l != "" && l != AutoLanguage {
			return l
		}
	}
	return AutoLanguage
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func stage(rep Progress, p float64, msg string) {
	if rep != nil {
		rep.Stage(p, msg)
	}
}

func update(rep Progress, p float64, msg string) {
	if rep != nil {
		rep.Update(p, msg)
	}
}
