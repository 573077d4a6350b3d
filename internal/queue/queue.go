package queue

import (
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}

// Enqueuer hands admitted posts to the worker pool. The asynq server's
// concurrency setting is the global cap on simultaneous publishes.
type Enqueuer interface {
	Enqueue(payload PublishPostPayload) error
}

type asynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) Enqueuer {
	return &asynqEnqueuer{client: client}
}

func (e *asynqEnqueuer) Enqueue(payload PublishPostPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = e.client.Enqueue(task, asynq.Timeout(5*time.Minute))
	if err != nil {
		return err
	}

	log.Printf("Publish task enqueued: %+v", payload)
	return nil
}
