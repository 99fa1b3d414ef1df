package queue

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusDead      Status = "dead"
)

// Job is one outbox row: an event name plus its JSON payload.
type Job struct {
	ID            string
	Event         string
	Payload       json.RawMessage
	Status        Status
	Attempt       int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     *string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

type EnqueueRequest struct {
	Event       string
	Payload     json.RawMessage
	MaxAttempts int
}

var ErrJobNotFound = errors.New("job not found")

const DefaultMaxAttempts = 5
