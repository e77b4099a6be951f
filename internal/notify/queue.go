package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue hands events to workers with lease semantics: a dequeued event stays
// in flight until acknowledged, and returns to the ready list once its lease
// expires.
type Queue interface {
	Enqueue(ctx context.Context, ev Event) error
	Dequeue(ctx context.Context) (Event, bool, error)
	Ack(ctx context.Context, eventID string) error
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

// RedisQueue keeps ready event ids in a list, leased ids in a sorted set
// scored by lease deadline, and event bodies under their own keys.
type RedisQueue struct {
	client      *redis.Client
	readyKey    string
	inflightKey string
	eventPrefix string
	visibility  time.Duration
	bodyTTL     time.Duration
}

// NewRedisQueue builds a queue on client. visibility is the lease length.
func NewRedisQueue(client *redis.Client, visibility time.Duration) *RedisQueue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &RedisQueue{
		client:      client,
		readyKey:    "notify:ready",
		inflightKey: "notify:inflight",
		eventPrefix: "notify:event:",
		visibility:  visibility,
		bodyTTL:     7 * 24 * time.Hour,
	}
}

func (q *RedisQueue) eventKey(id string) string {
	return q.eventPrefix + id
}

// Enqueue stores the event body and pushes its id. An event that is already
// queued or in flight is not queued twice.
func (q *RedisQueue) Enqueue(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = enqueueScript.Run(ctx, q.client,
		[]string{q.eventKey(ev.ID), q.readyKey},
		body, ev.ID, q.bodyTTL.Milliseconds(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("enqueue event %s: %w", ev.ID, err)
	}
	return nil
}

// Dequeue leases the oldest ready event. ok is false when nothing is ready.
func (q *RedisQueue) Dequeue(ctx context.Context) (Event, bool, error) {
	deadline := time.Now().Add(q.visibility).UnixMilli()
	res, err := dequeueScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey}, deadline).Result()
	if errors.Is(err, redis.Nil) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	id, ok := res.(string)
	if !ok {
		return Event{}, false, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}

	body, err := q.client.Get(ctx, q.eventKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Acknowledged by another worker after a duplicate requeue.
		_ = q.client.ZRem(ctx, q.inflightKey, id).Err()
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("load event %s: %w", id, err)
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		// Poison message: drop it so it cannot block the queue.
		_ = q.Ack(ctx, id)
		return Event{}, false, fmt.Errorf("decode event %s: %w", id, err)
	}
	return ev, true, nil
}

// Ack removes an event from in-flight tracking along with its body.
func (q *RedisQueue) Ack(ctx context.Context, eventID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, eventID)
	pipe.Del(ctx, q.eventKey(eventID))
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueExpired reclaims leases that timed out.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// Depth returns the number of ready and in-flight events.
func (q *RedisQueue) Depth(ctx context.Context) (ready, inflight int64, err error) {
	pipe := q.client.Pipeline()
	r := pipe.LLen(ctx, q.readyKey)
	f := pipe.ZCard(ctx, q.inflightKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return r.Val(), f.Val(), nil
}

var enqueueScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[3]) then
  redis.call('RPUSH', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

var dequeueScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if id then
  redis.call('ZADD', KEYS[2], ARGV[1], id)
  return id
end
return nil
`)
