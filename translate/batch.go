package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/response"
)

// itemOverhead approximates the JSON framing around each unit in a payload.
const itemOverhead = 32

// UnitsFromSegments turns transcript segments into translation units.
func UnitsFromSegments(segs []models.Segment) []Unit {
	out := make([]Unit, 0, len(segs))
	for _, s := range segs {
		out = append(out, Unit{ID: s.ID, Text: s.Text, Start: s.Start, End: s.End})
	}
	return out
}

// batch groups ids into contiguous batches bounded by item count and by
// payload size. A single oversized unit still forms a batch of its own.
func (o *Orchestrator) batch(order []string, texts map[string]string) [][]string {
	var (
		out   [][]string
		cur   []string
		chars int
	)
	for _, id := range order {
		add := len(texts[id]) + itemOverhead
		if len(cur) > 0 && (len(cur) >= o.opts.MaxItems || chars+add > o.opts.MaxChars) {
			out = append(out, cur)
			cur, chars = nil, 0
		}
		cur = append(cur, id)
		chars += add
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// idRange is a half-open index range into the ids of one splitLoop.
type idRange struct{ start, end int }

type rangeOutcome struct {
	translated map[string]string
	err        error
}

// splitLoop works a queue of ranges over ids to a fixed point. A range that
// comes back incomplete is replaced at the front of the queue by its two
// halves, so work proceeds depth first in document order.
func (o *Orchestrator) splitLoop(ctx context.Context, ids []string, texts map[string]string, label string, b band, done *atomic.Int64, total int64, rep Progress) rangeOutcome {
	local := make(map[string]string, len(ids))
	queue := []idRange{{0, len(ids)}}
	splits, iters := 0, 0
	var lastErr error

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		r := queue[0]
		queue = queue[1:]

		iters++
		if iters > o.opts.MaxIterations {
			o.log.WithFields(logrus.Fields{"label": label, "iterations": iters - 1}).Warn("iteration ceiling reached")
			break
		}
		end := r.end
		if end > len(ids) {
			end = len(ids)
		}
		if r.start >= end {
			continue
		}

		var pending []response.Pair
		for _, id := range ids[r.start:end] {
			if _, ok := local[id]; !ok {
				pending = append(pending, response.Pair{ID: id, Text: texts[id]})
			}
		}
		if len(pending) == 0 {
			continue
		}

		n := done.Load()
		report(rep, b.at(n, total), fmt.Sprintf("%s %d/%d", label, n, total))

		pairs, err := o.translateRange(ctx, pending)
		for _, p := range pairs {
			if _, ok := local[p.ID]; !ok {
				local[p.ID] = p.Text
				done.Add(1)
			}
		}
		remaining := 0
		for _, p := range pending {
			if _, ok := local[p.ID]; !ok {
				remaining++
			}
		}

		log := o.log.WithFields(logrus.Fields{
			"label":      label,
			"range":      fmt.Sprintf("%d-%d", r.start, end),
			"pending":    len(pending),
			"translated": len(pending) - remaining,
		})
		if err != nil {
			lastErr = err
			log.WithError(err).Debug("range failed")
		} else if remaining > 0 {
			lastErr = fmt.Errorf("%w: %d of %d missing", errMissingItems, remaining, len(pending))
			log.Debug("range incomplete")
		}

		if remaining == 0 || len(pending) <= 1 {
			continue
		}
		if err != nil && !IsTruncationLike(err) {
			continue
		}
		if splits >= o.opts.MaxSplits {
			log.Warn("split ceiling reached")
			continue
		}
		mid := r.start + (end-r.start)/2
		if mid > r.start && mid < end {
			splits++
			queue = append([]idRange{{r.start, mid}, {mid, end}}, queue...)
		}
	}
	return rangeOutcome{translated: local, err: lastErr}
}

// translateRange asks for pending in each output format in turn and returns
// the first usable answer, restricted to the requested ids.
func (o *Orchestrator) translateRange(ctx context.Context, pending []response.Pair) ([]response.Pair, error) {
	payload, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	want := make(map[string]bool, len(pending))
	for _, p := range pending {
		want[p.ID] = true
	}

	var lastErr error
	for _, f := range Formats {
		raw, err := o.generate(ctx, f.Prompt(o.opts.TargetLang, string(payload)))
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", f.Name, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		pairs, strategy, err := response.ParseWith(raw)
		if err != nil {
			lastErr = err
			continue
		}
		pairs = keep(pairs, want)
		if len(pairs) == 0 {
			lastErr = errMissingItems
			continue
		}
		if err := response.Validate(pairs, o.opts.TargetLang, len(pending)); err != nil {
			lastErr = err
			continue
		}
		o.log.WithFields(logrus.Fields{"format": f.Name, "parser": strategy, "items": len(pairs)}).Debug("range answered")
		return pairs, nil
	}
	return nil, lastErr
}

// generate retries transient failures after each configured delay.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	attempts := len(o.opts.RetryDelays) + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		raw, err := o.gen.Generate(ctx, prompt, o.opts.MaxOutputTokens)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == attempts-1 {
			break
		}
		o.log.WithError(err).WithField("attempt", attempt+1).Debug("transient failure, retrying")
		if serr := sleepCtx(ctx, o.opts.RetryDelays[attempt]); serr != nil {
			return "", errors.Join(lastErr, serr)
		}
	}
	return "", lastErr
}

func keep(pairs []response.Pair, want map[string]bool) []response.Pair {
	out := pairs[:0]
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if want[p.ID] && !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}
