package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Relay broadcasts encoded operations to every hub serving a document.
//
// Subscribers of a document must receive its messages in publish order.
type Relay interface {
	// Publish sends payload to every subscriber of doc, including the publisher.
	Publish(ctx context.Context, doc string, payload []byte) error
	// Subscribe starts receiving the messages of doc. The returned func stops the subscription
	// and closes the channel.
	Subscribe(ctx context.Context, doc string) (<-chan []byte, func(), error)
}

const subscriptionBuffer = 256

// +-------------+
// | Local relay |
// +-------------+

// LocalRelay is a Relay within a single process.
type LocalRelay struct {
	mu   sync.Mutex
	subs map[string]map[*localSub]struct{}
}

type localSub struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

var _ Relay = (*LocalRelay)(nil)

// NewLocalRelay returns an empty in-process relay.
func NewLocalRelay() *LocalRelay {
	return &LocalRelay{subs: make(map[string]map[*localSub]struct{})}
}

// Publish delivers payload to every subscriber, waiting for subscribers with a full buffer.
func (r *LocalRelay) Publish(ctx context.Context, doc string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subs[doc] {
		select {
		case sub.ch <- payload:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a new subscriber for doc.
func (r *LocalRelay) Subscribe(ctx context.Context, doc string) (<-chan []byte, func(), error) {
	sub := &localSub{
		ch:   make(chan []byte, subscriptionBuffer),
		done: make(chan struct{}),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[doc] == nil {
		r.subs[doc] = make(map[*localSub]struct{})
	}
	r.subs[doc][sub] = struct{}{}
	cancel := func() {
		sub.once.Do(func() {
			// Unblocks a Publish holding the lock.
			close(sub.done)
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs[doc], sub)
			if len(r.subs[doc]) == 0 {
				delete(r.subs, doc)
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

// +-------------+
// | Redis relay |
// +-------------+

// RedisRelay is a Relay over redis pub/sub, shared by every hub connected to the same server.
type RedisRelay struct {
	rdb redis.UniversalClient
}

var _ Relay = (*RedisRelay)(nil)

// NewRedisRelay returns a relay publishing on the channel "woot:<doc>".
func NewRedisRelay(rdb redis.UniversalClient) *RedisRelay {
	return &RedisRelay{rdb: rdb}
}

func redisChannel(doc string) string {
	return "woot:" + doc
}

// Publish sends payload to the document channel.
func (r *RedisRelay) Publish(ctx context.Context, doc string, payload []byte) error {
	if err := r.rdb.Publish(ctx, redisChannel(doc), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", doc, err)
	}
	return nil
}

// Subscribe listens on the document channel. It returns only after the subscription is active,
// so that no message published afterwards is lost.
func (r *RedisRelay) Subscribe(ctx context.Context, doc string) (<-chan []byte, func(), error) {
	pubsub := r.rdb.Subscribe(ctx, redisChannel(doc))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s: %w", doc, err)
	}
	msgs := pubsub.Channel(redis.WithChannelSize(subscriptionBuffer))
	out := make(chan []byte, subscriptionBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range msgs {
			select {
			case out <- []byte(msg.Payload):
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}
	return out, cancel, nil
}
