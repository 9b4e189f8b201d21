package generator

import (
	"context"
	"time"
)

// Blocking turns an asynchronous Generator into a synchronous one: Submit
// waits until the job finishes or the timeout expires.
type Blocking struct {
	inner    Generator
	interval time.Duration
	timeout  time.Duration
}

// NewBlocking wraps inner, polling every interval for at most timeout.
func NewBlocking(inner Generator, interval, timeout time.Duration) *Blocking {
	if interval <= 0 {
		interval = time.Second
	}
	return &Blocking{inner: inner, interval: interval, timeout: timeout}
}

// Submit returns a Submission with AssetURI set, or a *ServiceError.
func (b *Blocking) Submit(ctx context.Context, req Request) (Submission, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	sub, err := b.inner.Submit(ctx, req)
	if err != nil {
		return Submission{}, serviceErr("submit", err)
	}
	if sub.Done() {
		return sub, nil
	}
	if sub.Handle == "" {
		return Submission{}, serviceErrf("submit", "response carries neither handle nor asset")
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		status, err := b.inner.Poll(ctx, sub.Handle)
		if err != nil {
			return Submission{}, serviceErr("wait", err)
		}
		switch status.Phase {
		case PhaseSucceeded:
			if status.AssetURI == "" {
				return Submission{}, serviceErrf("wait", "job %s succeeded without output", sub.Handle)
			}
			return Submission{Handle: sub.Handle, AssetURI: status.AssetURI}, nil
		case PhaseFailed:
			return Submission{}, serviceErrf("wait", "job %s failed: %s", sub.Handle, status.Message)
		}

		select {
		case <-ctx.Done():
			return Submission{}, serviceErr("wait", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Poll delegates to the wrapped generator.
func (b *Blocking) Poll(ctx context.Context, handle string) (Status, error) {
	return b.inner.Poll(ctx, handle)
}
