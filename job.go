package pgjob

import (
	"time"
)

// DefaultPriority is assigned to jobs enqueued without an explicit priority.
// Lower values are claimed first.
const DefaultPriority = int16(100)

type State string

const (
	StateQueued   State = "queued"
	StateFinished State = "finished"
	StateExpired  State = "expired"
)

type Job struct {
	Id         int64
	Queue      string
	Type       string
	Arg        []byte
	Priority   int16
	RunAt      time.Time
	ErrorCount int32
	LastError  *string
	FinishedAt *time.Time
	ExpiredAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// State is derived from the terminal markers, there is no status column.
// A claimed job is still StateQueued, the claim lives in the advisory lock.
func (j Job) State() State {
	switch {
	case j.ExpiredAt != nil:
		return StateExpired
	case j.FinishedAt != nil:
		return StateFinished
	default:
		return StateQueued
	}
}
