package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueDownsizeImage enqueues one file. The task ID is derived from the run
// and input path, so enqueuing the same run twice does not duplicate work.
func (c *Client) EnqueueDownsizeImage(ctx context.Context, payload DownsizeImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewDownsizeImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.RunID+":"+payload.InputPath),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
