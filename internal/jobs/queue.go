package jobs

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Queue appends cleanup tasks to a Redis stream.
type Queue struct {
	client *redis.Client
	stream string
}

func NewQueue(client *redis.Client, stream string) *Queue {
	return &Queue{client: client, stream: stream}
}

func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	values, err := task.Values()
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: values,
	}).Err()
}

func (q *Queue) EnqueueRemove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return q.Enqueue(ctx, Task{Type: TaskRemove, Paths: paths})
}

func (q *Queue) EnqueueSweep(ctx context.Context) error {
	return q.Enqueue(ctx, Task{Type: TaskSweep})
}
