// Package dreams orchestrates video generation jobs ("dreams").
//
// Jobs advance only when someone calls Service.CheckStatus: the API client
// polling check_dream_status, or the optional worker sweep. There is no push
// channel. Every state change is a conditional write keyed by the job id and
// its expected current status, so concurrent pollers cannot apply two
// different terminal outcomes.
package dreams

import (
	"errors"
	"fmt"
	"time"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusFallback   Status = "fallback"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusFallback:
		return true
	}
	return false
}

// HasVideo reports whether a job in this status must carry a video reference.
func (s Status) HasVideo() bool {
	return s == StatusCompleted || s == StatusFallback
}

var transitions = map[Status][]Status{
	StatusSubmitted:  {StatusProcessing, StatusCompleted, StatusFailed, StatusFallback},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusFallback},
}

// CanTransition reports whether from → to is a forward edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Dream is a stored generation job.
type Dream struct {
	ID             string
	OwnerEmail     string
	CharacterID    string
	CharacterName  string
	Prompt         string
	IdempotencyKey string
	JobHandle      string
	Status         Status
	VideoRef       string
	ErrorDetail    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transition is the change applied when leaving the current status.
// Empty JobHandle keeps the stored handle.
type Transition struct {
	To          Status
	JobHandle   string
	VideoRef    string
	ErrorDetail string
}

var (
	ErrNotFound          = errors.New("dream not found")
	ErrDuplicate         = errors.New("dream idempotency key already used")
	ErrStaleTransition   = errors.New("dream status changed concurrently")
	ErrInvalidTransition = errors.New("invalid dream transition")
)

// Validate checks the edge and the video-reference invariant.
func (t Transition) Validate(from Status) error {
	if !CanTransition(from, t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, t.To)
	}
	if t.To.HasVideo() != (t.VideoRef != "") {
		return fmt.Errorf("%w: status %s with video reference %q", ErrInvalidTransition, t.To, t.VideoRef)
	}
	if t.To == StatusProcessing && t.JobHandle == "" {
		return fmt.Errorf("%w: processing requires a job handle", ErrInvalidTransition)
	}
	return nil
}
