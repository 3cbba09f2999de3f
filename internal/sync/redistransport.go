package sync

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"memcore/internal/logging"
)

// RedisTransport carries sync messages over a Redis Pub/Sub channel,
// with a single background goroutine draining the subscription and
// fanning each message out to local subscribers.
type RedisTransport struct {
	client  redis.UniversalClient
	channel string
	ctx     context.Context
	cancel  context.CancelFunc

	mu   sync.Mutex
	subs []chan Message
}

// NewRedisTransport dials addr and pings it before returning, so callers
// fail fast on misconfiguration instead of silently dropping every post.
func NewRedisTransport(addr, channel string) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &RedisTransport{client: client, channel: channel, ctx: ctx, cancel: cancel}

	sub := client.Subscribe(ctx, channel)
	go func() {
		log := logging.For("sync.redis")
		for raw := range sub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Warn().Err(err).Msg("decode sync message failed")
				continue
			}
			t.dispatch(msg)
		}
	}()
	return t, nil
}

func (t *RedisTransport) dispatch(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (t *RedisTransport) Post(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.client.Publish(t.ctx, t.channel, data).Err()
}

func (t *RedisTransport) OnMessage(cb func(Message)) func() {
	ch := make(chan Message, 64)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			cb(msg)
		}
	}()
	return func() {
		t.mu.Lock()
		for i, s := range t.subs {
			if s == ch {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
		close(ch)
		<-done
	}
}

func (t *RedisTransport) Close() error {
	t.cancel()
	return t.client.Close()
}
