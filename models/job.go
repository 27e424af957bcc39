package models

type JobKind string

const (
	JobTranscribe JobKind = "transcribe"
	JobSubtitle   JobKind = "subtitle"
	JobExport     JobKind = "export"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further events follow this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

type JobProgressEvent struct {
	JobID    string    `json:"job_id"`
	MediaID  string    `json:"media_id"`
	JobKind  JobKind   `json:"job_kind"`
	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
	Message  *string   `json:"message,omitempty"`
}
