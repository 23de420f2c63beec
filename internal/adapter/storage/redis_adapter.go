package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
)

const (
	eventSeqKey          = "events:seq"
	eventListKey         = "events:log"
	idempotencyKeyTTL    = 24 * time.Hour
	defaultEventCapacity = 500
)

// recordEventScript assigns the next id and pushes the encoded event onto a
// capped list in one round trip. ARGV[1..3] are already JSON encoded.
var recordEventScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[1])
local entry = '{"id":' .. id .. ',"type":' .. ARGV[1] .. ',"at":' .. ARGV[2] .. ',"details":' .. ARGV[3] .. '}'
redis.call('LPUSH', KEYS[2], entry)
redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[4]) - 1)
return id
`)

type RedisAdapter struct {
	client   *redis.Client
	capacity int
	now      func() time.Time
}

var (
	_ port.IdempotencyStore = (*RedisAdapter)(nil)
	_ port.EventNotifier    = (*RedisAdapter)(nil)
)

func NewRedisAdapter(client *redis.Client, capacity int) *RedisAdapter {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &RedisAdapter{client: client, capacity: capacity, now: time.Now}
}

func (r *RedisAdapter) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) Record(ctx context.Context, eventType domain.EventType, details map[string]any) (domain.Event, error) {
	at := r.now().UTC()

	typeJSON, err := json.Marshal(eventType)
	if err != nil {
		return domain.Event{}, fmt.Errorf("encode event type: %w", err)
	}
	atJSON, err := json.Marshal(at)
	if err != nil {
		return domain.Event{}, fmt.Errorf("encode event time: %w", err)
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return domain.Event{}, fmt.Errorf("encode event details: %w", err)
	}

	id, err := recordEventScript.Run(ctx, r.client, []string{eventSeqKey, eventListKey},
		string(typeJSON), string(atJSON), string(detailsJSON), r.capacity,
	).Int64()
	if err != nil {
		return domain.Event{}, fmt.Errorf("record event: %w", err)
	}

	return domain.Event{ID: id, Type: eventType, At: at, Details: details}, nil
}

func (r *RedisAdapter) List(ctx context.Context, limit int) ([]domain.Event, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	raw, err := r.client.LRange(ctx, eventListKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]domain.Event, 0, len(raw))
	for _, entry := range raw {
		var ev domain.Event
		if err := json.Unmarshal([]byte(entry), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
