package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BillingJob asks for invoice creation for a completed appointment.
// Durability comes from the Redis list, not from a database row.
type BillingJob struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// BillingQueue is an at-least-once work queue. Push returns as soon as
// the job is on the list; Pop blocks until a job arrives or ctx is done.
type BillingQueue interface {
	Push(ctx context.Context, job BillingJob) error
	Pop(ctx context.Context) (BillingJob, error)
}

type redisBillingQueue struct {
	client *redis.Client
	key    string
}

func NewRedisBillingQueue(client *redis.Client, key string) BillingQueue {
	return &redisBillingQueue{client: client, key: key}
}

func (q *redisBillingQueue) Push(ctx context.Context, job BillingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal billing job: %w", err)
	}

	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push billing job: %w", err)
	}
	return nil
}

// Pop uses a short server-side BLPOP timeout per iteration so a cancelled
// ctx is noticed promptly instead of hanging on the blocking read.
func (q *redisBillingQueue) Pop(ctx context.Context) (BillingJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return BillingJob{}, err
		}

		res, err := q.client.BLPop(ctx, 5*time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return BillingJob{}, fmt.Errorf("pop billing job: %w", err)
		}

		// BLPOP returns [key, value]
		var job BillingJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return BillingJob{}, fmt.Errorf("decode billing job: %w", err)
		}
		return job, nil
	}
}
