package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/downsize/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeDownsizeImage = "image:downsize"

// DownsizeImagePayload carries everything a worker needs to process one file
// without access to the enqueuer's configuration.
type DownsizeImagePayload struct {
	RunID       string            `json:"run_id"`
	InputPath   string            `json:"input_path"`
	Bound       domain.Dimensions `json:"bound"`
	Output      domain.OutputSpec `json:"output"`
	RequestedAt time.Time         `json:"requested_at"`
}

func NewDownsizeImageTask(payload DownsizeImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal downsize payload: %w", err)
	}
	return asynq.NewTask(TypeDownsizeImage, body), nil
}

func ParseDownsizeImagePayload(task *asynq.Task) (DownsizeImagePayload, error) {
	var payload DownsizeImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DownsizeImagePayload{}, fmt.Errorf("unmarshal downsize payload: %w", err)
	}
	return payload, nil
}
