package tracking

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/travigo/livetrack/pkg/hfp"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]hfp.MessageHandler

	subscribed   chan string
	unsubscribes atomic.Int32

	err   error
	block bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers:   map[string]hfp.MessageHandler{},
		subscribed: make(chan string, 16),
	}
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, topic string, handler hfp.MessageHandler) (hfp.Subscription, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	f.handlers[topic] = handler
	f.mu.Unlock()

	f.subscribed <- topic

	return &fakeSubscription{subscriber: f, topic: topic}, nil
}

func (f *fakeSubscriber) publish(topic string, payload string) {
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()

	if handler != nil {
		handler(topic, []byte(payload))
	}
}

type fakeSubscription struct {
	subscriber *fakeSubscriber
	topic      string
}

func (s *fakeSubscription) Unsubscribe() error {
	s.subscriber.unsubscribes.Add(1)

	s.subscriber.mu.Lock()
	delete(s.subscriber.handlers, s.topic)
	s.subscriber.mu.Unlock()

	return nil
}
