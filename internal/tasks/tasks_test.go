package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/correlation"
)

type recordingClient struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestEnqueuePurgeCarriesPrefixAndCorrelationID(t *testing.T) {
	client := &recordingClient{}
	e := NewEnqueuer(client, nil)
	ctx := correlation.WithID(context.Background(), "corr-1")

	require.NoError(t, e.EnqueuePurge(ctx, "characters/a@example.com/c1/"))

	require.Len(t, client.tasks, 1)
	assert.Equal(t, TypeCharacterPurge, client.tasks[0].Type())
	var payload CharacterPurgePayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, "characters/a@example.com/c1/", payload.Prefix)
	assert.Equal(t, "corr-1", payload.CorrelationID)
}

func TestEnqueuePurgeRejectsUnboundedPrefix(t *testing.T) {
	client := &recordingClient{}
	e := NewEnqueuer(client, nil)

	assert.Error(t, e.EnqueuePurge(context.Background(), ""))
	assert.Error(t, e.EnqueuePurge(context.Background(), "characters/a@example.com"))
	assert.Empty(t, client.tasks)
}

func TestEnqueuePurgeClientError(t *testing.T) {
	e := NewEnqueuer(&recordingClient{err: errors.New("redis down")}, nil)

	err := e.EnqueuePurge(context.Background(), "characters/a/c/")
	assert.ErrorContains(t, err, "redis down")
}
