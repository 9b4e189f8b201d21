package dreams

import (
	"context"
	"log/slog"
)

// DefaultPlaceholderVideoURL is served when the generator cannot produce a video.
const DefaultPlaceholderVideoURL = "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"

// FallbackPolicy decides what a job becomes after an external-service failure.
//
// By default the job ends in StatusFallback carrying the placeholder video.
// In strict mode it ends in StatusFailed with the error text instead.
// Either way the client request itself succeeds.
type FallbackPolicy struct {
	placeholderURL string
	strict         bool
	logger         *slog.Logger
}

func NewFallbackPolicy(placeholderURL string, strict bool, logger *slog.Logger) FallbackPolicy {
	if placeholderURL == "" {
		placeholderURL = DefaultPlaceholderVideoURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return FallbackPolicy{placeholderURL: placeholderURL, strict: strict, logger: logger}
}

// Strict reports whether failures are recorded as StatusFailed.
func (p FallbackPolicy) Strict() bool { return p.strict }

// Handle logs cause and returns the terminal transition for dream d.
func (p FallbackPolicy) Handle(ctx context.Context, d Dream, op string, cause error) Transition {
	p.logger.WarnContext(ctx, "video generation failed, applying fallback",
		slog.String("dream_id", d.ID),
		slog.String("op", op),
		slog.Bool("strict", p.strict),
		slog.Any("error", cause),
	)
	if p.strict {
		detail := op
		if cause != nil {
			detail = cause.Error()
		}
		return Transition{To: StatusFailed, ErrorDetail: detail}
	}
	return Transition{To: StatusFallback, VideoRef: p.placeholderURL}
}
