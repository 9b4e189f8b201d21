// Package generator talks to the external image-to-video service.
//
// Every failure crossing this boundary (transport errors, timeouts, responses
// missing the expected output) is returned as *ServiceError so callers can
// route it to an explicit fallback handler.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Phase is the external job's progress as reported by the service.
type Phase string

const (
	PhaseInProgress Phase = "in_progress"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Fixed generation parameters. The cheapest configuration the model accepts.
const (
	DefaultDurationSeconds = 6
	DefaultFPS             = 24
	DefaultDimension       = "1280x720"
	DefaultSeed            = 0
)

// Request is one image+prompt generation job.
type Request struct {
	Image           []byte
	ImageFormat     string
	Prompt          string
	DurationSeconds int
	FPS             int
	Dimension       string
	Seed            int
	// ClientToken lets the service deduplicate retried submissions.
	ClientToken string
}

// NewRequest fills in the fixed cost-control parameters.
func NewRequest(image []byte, imageFormat, prompt, clientToken string) Request {
	return Request{
		Image:           image,
		ImageFormat:     imageFormat,
		Prompt:          prompt,
		DurationSeconds: DefaultDurationSeconds,
		FPS:             DefaultFPS,
		Dimension:       DefaultDimension,
		Seed:            DefaultSeed,
		ClientToken:     clientToken,
	}
}

// Submission is the result of a successful Submit. AssetURI is set once the
// finished asset exists; Handle identifies the external job.
type Submission struct {
	Handle   string
	AssetURI string
}

// Done reports whether the submission already carries the finished asset.
func (s Submission) Done() bool { return s.AssetURI != "" }

// Status is a polled job state.
type Status struct {
	Phase    Phase
	AssetURI string
	Message  string
}

// Generator submits and polls generation jobs.
type Generator interface {
	Submit(ctx context.Context, req Request) (Submission, error)
	Poll(ctx context.Context, handle string) (Status, error)
}

// ServiceError marks a failure of the external generation path.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("generator %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// AsServiceError extracts a *ServiceError from err.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func serviceErr(op string, err error) error {
	if _, ok := AsServiceError(err); ok {
		return err
	}
	return &ServiceError{Op: op, Err: err}
}

func serviceErrf(op, format string, args ...any) error {
	return &ServiceError{Op: op, Err: fmt.Errorf(format, args...)}
}

// ImageFormat derives the model's image format from an object key.
func ImageFormat(objectKey string) string {
	lower := strings.ToLower(objectKey)
	if strings.HasSuffix(lower, ".png") {
		return "png"
	}
	return "jpeg"
}
