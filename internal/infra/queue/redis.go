package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-track-bot/internal/domain"
)

// RedisRefreshQueue реализует очередь задач обновления на базе Redis lists.
type RedisRefreshQueue struct {
	client *redis.Client
	key    string
}

// NewRedisRefreshQueue создаёт очередь по указанному ключу.
func NewRedisRefreshQueue(client *redis.Client, key string) *RedisRefreshQueue {
	return &RedisRefreshQueue{client: client, key: key}
}

var _ domain.RefreshQueue = (*RedisRefreshQueue)(nil)

// Enqueue публикует задачу в очередь.
func (q *RedisRefreshQueue) Enqueue(ctx context.Context, task domain.RefreshTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push task: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisRefreshQueue) Pop(ctx context.Context) (domain.RefreshTask, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RefreshTask{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RefreshTask{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RefreshTask{}, err
		}
		if len(res) != 2 {
			return domain.RefreshTask{}, errors.New("redis queue: unexpected response")
		}
		var task domain.RefreshTask
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			return domain.RefreshTask{}, fmt.Errorf("decode task: %w", err)
		}
		return task, nil
	}
}
