// Package translate drives batch translation of transcript segments against an
// unreliable text-generation service.
//
// Units are grouped into bounded batches and run with limited concurrency.
// A batch whose output comes back truncated, malformed or incomplete is
// bisected and the halves retried, left half first, until every unit is
// translated or the split and iteration ceilings are reached. Units that never
// get a translation keep their source text.
package translate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/response"
)

// Generator is a single-shot text-generation call.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}

// Progress receives best-effort status updates; it must be safe for concurrent use.
type Progress interface {
	Update(progress float64, message string)
}

type Unit struct {
	ID    string
	Text  string
	Start float64 // sec
	End   float64 // sec
}

type Options struct {
	TargetLang      string
	MaxItems        int
	MaxChars        int
	Concurrency     int
	MaxSplits       int
	MaxIterations   int
	RetryDelays     []time.Duration
	MaxOutputTokens int
}

func DefaultOptions() Options {
	return Options{
		MaxItems:        140,
		MaxChars:        14_000,
		Concurrency:     4,
		MaxSplits:       512,
		MaxIterations:   2048,
		RetryDelays:     []time.Duration{350 * time.Millisecond, 900 * time.Millisecond, 1700 * time.Millisecond},
		MaxOutputTokens: 8192,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxItems <= 0 {
		o.MaxItems = d.MaxItems
	}
	if o.MaxChars <= 0 {
		o.MaxChars = d.MaxChars
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.MaxSplits <= 0 {
		o.MaxSplits = d.MaxSplits
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.RetryDelays == nil {
		o.RetryDelays = d.RetryDelays
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = d.MaxOutputTokens
	}
	o.TargetLang = strings.ToLower(strings.TrimSpace(o.TargetLang))
	return o
}

// Strategy names the orchestration mode recorded next to the translated track.
func (o Options) Strategy() string {
	return fmt.Sprintf("parallel_auto_split:c%d", o.Concurrency)
}

type Result struct {
	Translated      []models.Segment
	Bilingual       []models.Segment
	Total           int
	TranslatedCount int
	Coverage        float64
	Strategy        string
	// Missing lists units that kept their source text.
	Missing []string
	// LastErr is the last upstream failure seen, if any, kept for diagnostics
	// when Coverage < 1.
	LastErr error
}

type Orchestrator struct {
	gen  Generator
	opts Options
	log  logrus.FieldLogger
}

func New(gen Generator, opts Options, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Orchestrator{gen: gen, opts: opts.withDefaults(), log: log}
}

// progress bands of the job this orchestrator reports into
var (
	batchBand  = band{lo: 0.10, width: 0.80}
	repairBand = band{lo: 0.92, width: 0.03}
)

const maxRunningProgress = 0.95

type band struct{ lo, width float64 }

func (b band) at(done, total int64) float64 {
	frac := 0.0
	if total > 0 {
		frac = float64(done) / float64(total)
	}
	p := b.lo + b.width*frac
	if p > maxRunningProgress {
		p = maxRunningProgress
	}
	return p
}

// Translate translates every unit into opts.TargetLang. Units with a blank id or
// text are ignored and a repeated id keeps its first occurrence.
func (o *Orchestrator) Translate(ctx context.Context, units []Unit, rep Progress) (*Result, error) {
	if o.opts.TargetLang == "" {
		return nil, fmt.Errorf("translate: target language is empty")
	}
	order, byID := index(units)
	if len(order) == 0 {
		return nil, fmt.Errorf("translate: no units with text")
	}
	texts := make(map[string]string, len(byID))
	for id, u := range byID {
		texts[id] = u.Text
	}
	total := int64(len(order))
	var done atomic.Int64

	batches := o.batch(order, texts)
	report(rep, 0.05, fmt.Sprintf("translating (chunks=%d)", len(batches)))
	o.log.WithFields(logrus.Fields{"units": total, "batches": len(batches), "target": o.opts.TargetLang}).Info("translation started")

	outcomes := make([]rangeOutcome, len(batches))
	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for i, ids := range batches {
		i, ids := i, ids
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			label := fmt.Sprintf("chunk %d/%d", i+1, len(batches))
			outcomes[i] = o.splitLoop(gctx, ids, texts, label, batchBand, &done, total, rep)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(order))
	var lastErr error
	for _, oc := range outcomes {
		for id, text := range oc.translated {
			out[id] = text
		}
		if oc.err != nil {
			lastErr = oc.err
		}
	}

	var missing []string
	for _, id := range order {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		report(rep, 0.92, fmt.Sprintf("repairing missing translations (%d/%d)", len(missing), total))
		o.log.WithField("missing", len(missing)).Info("repair pass")
		oc := o.splitLoop(ctx, missing, texts, "repairing", repairBand, &done, total, rep)
		for id, text := range oc.translated {
			out[id] = text
		}
		if oc.err != nil {
			lastErr = oc.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if len(out) == 0 {
		hint := "unknown error"
		if lastErr != nil {
			if p := response.Preview(lastErr.Error(), lastErrorPreviewLen); p != "" {
				hint = p
			}
		}
		return nil, fmt.Errorf("%w\n\nlast error (first %d chars):\n%s", ErrNoTranslation, lastErrorPreviewLen, hint)
	}

	res := o.assemble(order, byID, out)
	res.LastErr = lastErr
	o.log.WithFields(logrus.Fields{
		"translated": res.TranslatedCount,
		"total":      res.Total,
		"coverage":   fmt.Sprintf("%.3f", res.Coverage),
	}).Info("translation finished")
	return res, nil
}

func (o *Orchestrator) assemble(order []string, byID map[string]Unit, out map[string]string) *Result {
	res := &Result{
		Total:    len(order),
		Strategy: o.opts.Strategy(),
	}
	for _, id := range order {
		u := byID[id]
		end := u.End
		if end < u.Start {
			end = u.Start
		}
		text, ok := out[id]
		if ok {
			res.TranslatedCount++
		} else {
			text = u.Text
			res.Missing = append(res.Missing, id)
		}
		res.Translated = append(res.Translated, models.Segment{ID: id, Start: u.Start, End: end, Text: text})
		res.Bilingual = append(res.Bilingual, models.Segment{ID: id, Start: u.Start, End: end, Text: u.Text + "\n" + text})
	}
	res.Coverage = float64(res.TranslatedCount) / float64(res.Total)
	return res
}

func index(units []Unit) ([]string, map[string]Unit) {
	order := make([]string, 0, len(units))
	byID := make(map[string]Unit, len(units))
	for _, u := range units {
		u.ID = strings.TrimSpace(u.ID)
		u.Text = strings.TrimSpace(u.Text)
		if u.ID == "" || u.Text == "" {
			continue
		}
		if _, dup := byID[u.ID]; dup {
			continue
		}
		order = append(order, u.ID)
		byID[u.ID] = u
	}
	return order, byID
}

func report(rep Progress, p float64, msg string) {
	if rep != nil {
		rep.Update(p, msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
