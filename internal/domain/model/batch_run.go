package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type BatchRunStatus string

const (
	BatchRunSkippedEmpty   BatchRunStatus = "skipped_empty"
	BatchRunSkippedNoImage BatchRunStatus = "skipped_no_image"
	BatchRunSkippedNoRows  BatchRunStatus = "skipped_no_records"
	BatchRunExtractFailed  BatchRunStatus = "extract_failed"
	BatchRunPushFailed     BatchRunStatus = "push_failed"
	BatchRunSucceeded      BatchRunStatus = "succeeded"
)

// BatchRun is the audit entry of one pipeline invocation.
type BatchRun struct {
	ID             string
	Snippets       int
	Images         int
	Status         BatchRunStatus
	JobID          string
	ConversationID string
	Polls          int
	RecordsPushed  int
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// NewBatchRun stamps a time-ordered ID so runs sort by start time.
func NewBatchRun(b Batch, now time.Time) *BatchRun {
	return &BatchRun{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Snippets:  len(b),
		Images:    b.ImageCount(),
		StartedAt: now,
	}
}

func (r *BatchRun) Finish(status BatchRunStatus, err error, now time.Time) {
	r.Status = status
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = now
}

func (r *BatchRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
