package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCharacterPurge = "character:purge"
	TypeDreamSweep     = "dream:sweep"
)

// CharacterPurgePayload 描述需要清理的角色图片前缀。
type CharacterPurgePayload struct {
	Prefix        string `json:"prefix"`
	CorrelationID string `json:"correlation_id"`
}

// NewCharacterPurgeTask 构造删除角色图片的任务。
func NewCharacterPurgeTask(prefix, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CharacterPurgePayload{
		Prefix:        prefix,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCharacterPurge, payload), nil
}

// DreamSweepPayload 限定一次巡检推进的任务数。
type DreamSweepPayload struct {
	Limit int `json:"limit"`
}

// NewDreamSweepTask 构造周期性的 dream 状态巡检任务。
func NewDreamSweepTask(limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(DreamSweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDreamSweep, payload), nil
}
