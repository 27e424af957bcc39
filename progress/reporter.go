// Package progress publishes job progress events on a best-effort basis.
//
// A Reporter belongs to one job. Emission never fails the job: sink errors are
// logged at debug level and dropped.
package progress

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/transcript-pipeline/models"
)

// Sink delivers events to a subscriber (log, UI, ...).
type Sink interface {
	Emit(ev models.JobProgressEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev models.JobProgressEvent) error

func (f SinkFunc) Emit(ev models.JobProgressEvent) error { return f(ev) }

type JobInfo struct {
	JobID   string
	MediaID string
	Kind    models.JobKind
}

type Options struct {
	// Update is dropped unless both MinInterval has elapsed and progress moved
	// by at least MinDelta since the last emitted event.
	MinInterval time.Duration
	MinDelta    float64
	Log         logrus.FieldLogger
}

func DefaultOptions() Options {
	return Options{MinInterval: 350 * time.Millisecond, MinDelta: 0.01}
}

type Reporter struct {
	sink Sink
	job  JobInfo
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time

	mu       sync.Mutex
	emitted  bool
	last     float64
	lastAt   time.Time
	terminal bool
}

func NewReporter(sink Sink, job JobInfo, opts Options) *Reporter {
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Reporter{
		sink: sink,
		job:  job,
		opts: opts,
		log:  log.WithFields(logrus.Fields{"job_id": job.JobID, "media_id": job.MediaID}),
		now:  time.Now,
	}
}

func (r *Reporter) Job() JobInfo {
	if r == nil {
		return JobInfo{}
	}
	return r.job
}

// Update reports running progress, subject to throttling.
func (r *Reporter) Update(progress float64, message string) {
	r.emit(models.JobRunning, progress, message, true)
}

// Stage reports running progress immediately, for stage transitions.
func (r *Reporter) Stage(progress float64, message string) {
	r.emit(models.JobRunning, progress, message, false)
}

func (r *Reporter) Succeed(message string) {
	r.emit(models.JobSucceeded, 1, message, false)
}

func (r *Reporter) Fail(err error) {
	msg := "failed"
	if err != nil {
		msg = err.Error()
	}
	r.emit(models.JobFailed, 1, msg, false)
}

// Done reports whether a terminal event was emitted.
func (r *Reporter) Done() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

func (r *Reporter) emit(status models.JobStatus, progress float64, message string, throttle bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	progress = clamp01(progress)
	now := r.now()
	if throttle && r.emitted {
		if now.Sub(r.lastAt) < r.opts.MinInterval || math.Abs(progress-r.last) < r.opts.MinDelta {
			return
		}
	}
	r.emitted = true
	r.last = progress
	r.lastAt = now
	if status.IsTerminal() {
		r.terminal = true
	}
	if r.sink == nil {
		return
	}

	ev := models.JobProgressEvent{
		JobID:    r.job.JobID,
		MediaID:  r.job.MediaID,
		JobKind:  r.job.Kind,
		Status:   status,
		Progress: progress,
	}
	if message != "" {
		m := message
		ev.Message = &m
	}
	if err := r.sink.Emit(ev); err != nil {
		r.log.WithError(err).Debug("progress event dropped")
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
