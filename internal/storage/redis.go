package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/repository"
)

const jobQueueKey = "refinery:jobs"

// RedisQueue implements repository.JobQueue on a Redis list.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(addr string) *RedisQueue {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisQueue{client: rdb}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Push adds a job to the left side of the list.
func (q *RedisQueue) Push(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, jobQueueKey, payload).Err()
}

// Pop removes a job from the right side of the list. Returns ErrQueueEmpty
// when nothing is waiting.
func (q *RedisQueue) Pop(ctx context.Context) (*domain.Job, error) {
	payload, err := q.client.RPop(ctx, jobQueueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, jobQueueKey).Result()
}
