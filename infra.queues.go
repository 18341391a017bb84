package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ensure *redisQueue implements Queuer.
var _ Queuer = (*redisQueue)(nil)

// LoanQueues lists the queues carrying loans events.
var LoanQueues = []string{LoanBorrowedQueue, LoanReturnedQueue, LoanFinedQueue, LoanSettledQueue}

// Queuer describes a queue of loans events.
type Queuer interface {
	Push(ctx context.Context, qid string, event LoanEvent) error
	Pop(ctx context.Context, qids ...string) (string, LoanEvent, error)
}

// redisQueue represents a queue which implements the Queuer interface.
type redisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) Queuer {
	return &redisQueue{client: client}
}

// Push enqueues an event onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, event LoanEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, qid, data).Err()
}

// Pop blocks until an event is available on one of the queues and returns it.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, LoanEvent, error) {
	var event LoanEvent
	var qid string
	infos, err := q.client.BLPop(ctx, 0*time.Second, qids...).Result()
	if err != nil {
		return qid, event, err
	}

	if err = json.Unmarshal([]byte(infos[1]), &event); err != nil {
		return qid, event, err
	}
	qid = infos[0]
	return qid, event, nil
}
