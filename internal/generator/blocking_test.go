package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	submission Submission
	statuses   []Status
	polls      int
}

func (g *scriptedGenerator) Submit(context.Context, Request) (Submission, error) {
	return g.submission, nil
}

func (g *scriptedGenerator) Poll(context.Context, string) (Status, error) {
	i := g.polls
	g.polls++
	if i >= len(g.statuses) {
		return Status{Phase: PhaseInProgress}, nil
	}
	return g.statuses[i], nil
}

func TestBlockingWaitsForCompletion(t *testing.T) {
	inner := &scriptedGenerator{
		submission: Submission{Handle: "h"},
		statuses: []Status{
			{Phase: PhaseInProgress},
			{Phase: PhaseSucceeded, AssetURI: "s3://b/k/output.mp4"},
		},
	}
	b := NewBlocking(inner, time.Millisecond, time.Second)

	sub, err := b.Submit(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "s3://b/k/output.mp4", sub.AssetURI)
	assert.Equal(t, 2, inner.polls)
}

func TestBlockingFailedJobIsServiceError(t *testing.T) {
	inner := &scriptedGenerator{
		submission: Submission{Handle: "h"},
		statuses:   []Status{{Phase: PhaseFailed, Message: "content filtered"}},
	}
	_, err := NewBlocking(inner, time.Millisecond, time.Second).Submit(context.Background(), Request{})
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Contains(t, se.Error(), "content filtered")
}

func TestBlockingTimeoutIsServiceError(t *testing.T) {
	inner := &scriptedGenerator{submission: Submission{Handle: "h"}}
	_, err := NewBlocking(inner, time.Millisecond, 20*time.Millisecond).Submit(context.Background(), Request{})
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.ErrorIs(t, se, context.DeadlineExceeded)
}

func TestBlockingMissingHandle(t *testing.T) {
	_, err := NewBlocking(&scriptedGenerator{}, time.Millisecond, time.Second).Submit(context.Background(), Request{})
	_, ok := AsServiceError(err)
	assert.True(t, ok)
}
