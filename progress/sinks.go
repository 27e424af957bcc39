package progress

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/transcript-pipeline/models"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Emit(ev models.JobProgressEvent) error {
	if s.Log == nil {
		return nil
	}
	e := s.Log.WithFields(logrus.Fields{
		"job_id":   ev.JobID,
		"media_id": ev.MediaID,
		"job_kind": ev.JobKind,
		"status":   ev.Status,
		"progress": ev.Progress,
	})
	msg := "progress"
	if ev.Message != nil {
		msg = *ev.Message
	}
	if ev.Status == models.JobFailed {
		e.Error(msg)
		return nil
	}
	e.Info(msg)
	return nil
}

type multi []Sink

// Multi fans every event out to all non-nil sinks.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Emit(ev models.JobProgressEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
