package positions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const queuesKey = "livetrack::queues"

var ErrQueueNotFound = errors.New("queue does not exist")

type QueueAttributes struct {
	Retention         time.Duration
	VisibilityTimeout time.Duration
}

type QueueMessage struct {
	ID     string
	Body   []byte
	SentAt time.Time
}

// QueueService is a per vehicle bounded message queue.
// Messages older than the retention period are discarded and a received message stays
// hidden from other receivers for the visibility timeout.
type QueueService interface {
	CreateQueue(ctx context.Context, name string, attributes QueueAttributes) (created bool, err error)
	SendMessage(ctx context.Context, name string, body []byte) error
	ReceiveMessages(ctx context.Context, name string, maxMessages int) ([]QueueMessage, error)
}

// RedisQueue keeps each queue in three keys:
// a ready sorted set scored by when a message is next visible,
// a sent sorted set scored by enqueue time for retention,
// and a hash of message bodies.
// Expired messages are trimmed on every send and receive, and the three keys expire
// once a queue has gone unwritten for longer than retention plus visibility timeout.
type RedisQueue struct {
	Client redis.Cmdable
	Now    func() time.Time
}

func NewRedisQueue(client redis.Cmdable) *RedisQueue {
	return &RedisQueue{Client: client, Now: time.Now}
}

// trimScript is the shared head of the queue scripts.
// KEYS: ready, sent, bodies, attributes
// ARGV[1]: now ms
const trimScript = `
local now = tonumber(ARGV[1])
local retention = tonumber(redis.call('HGET', KEYS[4], 'retention'))
local visibility = tonumber(redis.call('HGET', KEYS[4], 'visibility'))
if not retention or not visibility then
	return redis.error_reply('queue attributes missing')
end

local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now - retention)
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('ZREM', KEYS[2], id)
	redis.call('HDEL', KEYS[3], id)
end
`

// ARGV: now ms, message id, body
var sendScript = redis.NewScript(trimScript + `
redis.call('HSET', KEYS[3], ARGV[2], ARGV[3])
redis.call('ZADD', KEYS[1], now, ARGV[2])
redis.call('ZADD', KEYS[2], now, ARGV[2])

for i = 1, 3 do
	redis.call('PEXPIRE', KEYS[i], retention + visibility)
end

return #expired
`)

// ARGV: now ms, max messages
var receiveScript = redis.NewScript(trimScript + `
local max = tonumber(ARGV[2])

local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, max)
local out = {}
for _, id in ipairs(ids) do
	redis.call('ZADD', KEYS[1], now + visibility, id)
	table.insert(out, id)
	table.insert(out, redis.call('HGET', KEYS[3], id))
	table.insert(out, redis.call('ZSCORE', KEYS[2], id))
end

return out
`)

// CreateQueue registers the queue and its attributes in one transaction.
// Attributes of an existing queue are left as they are.
func (q *RedisQueue) CreateQueue(ctx context.Context, name string, attributes QueueAttributes) (bool, error) {
	var added *redis.IntCmd

	_, err := q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, attributesKey(name), "retention", attributes.Retention.Milliseconds())
		pipe.HSetNX(ctx, attributesKey(name), "visibility", attributes.VisibilityTimeout.Milliseconds())
		added = pipe.SAdd(ctx, queuesKey, name)
		return nil
	})
	if err != nil {
		return false, err
	}

	return added.Val() == 1, nil
}

func (q *RedisQueue) SendMessage(ctx context.Context, name string, body []byte) error {
	if err := q.ensureExists(ctx, name); err != nil {
		return err
	}

	// v7 ids sort in creation order, keeping messages sent in the same millisecond ordered
	messageID, err := uuid.NewV7()
	if err != nil {
		return err
	}

	keys := []string{readyKey(name), sentKey(name), bodiesKey(name), attributesKey(name)}

	return sendScript.Run(ctx, q.Client, keys, q.Now().UnixMilli(), messageID.String(), body).Err()
}

// ReceiveMessages returns up to maxMessages currently visible messages without waiting
func (q *RedisQueue) ReceiveMessages(ctx context.Context, name string, maxMessages int) ([]QueueMessage, error) {
	if err := q.ensureExists(ctx, name); err != nil {
		return nil, err
	}

	keys := []string{readyKey(name), sentKey(name), bodiesKey(name), attributesKey(name)}
	result, err := receiveScript.Run(ctx, q.Client, keys, q.Now().UnixMilli(), maxMessages).StringSlice()
	if err != nil {
		return nil, err
	}

	messages := make([]QueueMessage, 0, len(result)/3)
	for i := 0; i+2 < len(result); i += 3 {
		sentAt, _ := strconv.ParseFloat(result[i+2], 64)

		messages = append(messages, QueueMessage{
			ID:     result[i],
			Body:   []byte(result[i+1]),
			SentAt: time.UnixMilli(int64(sentAt)),
		})
	}

	return messages, nil
}

func (q *RedisQueue) ensureExists(ctx context.Context, name string) error {
	exists, err := q.Client.SIsMember(ctx, queuesKey, name).Result()
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}

	return nil
}

func queueKey(name string, suffix string) string {
	return "livetrack::queue::" + name + "::" + suffix
}

func readyKey(name string) string      { return queueKey(name, "ready") }
func sentKey(name string) string       { return queueKey(name, "sent") }
func bodiesKey(name string) string     { return queueKey(name, "bodies") }
func attributesKey(name string) string { return queueKey(name, "attributes") }
