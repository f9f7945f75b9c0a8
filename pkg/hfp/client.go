package hfp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const DefaultBrokerURL = "ssl://mqtt.hsl.fi:8883"

const defaultSubscribeTimeout = 30 * time.Second
const connectTimeout = 30 * time.Second

// MessageHandler receives every message published on a subscribed topic
type MessageHandler func(topic string, payload []byte)

type Subscription interface {
	Unsubscribe() error
}

// Client shares one broker connection between many local subscribers.
// Subscribers of the same topic filter share a single broker subscription which is
// only removed once the last of them unsubscribes.
type Client struct {
	QoS              byte
	SubscribeTimeout time.Duration

	mqtt mqtt.Client

	// sendMutex keeps broker subscribe/unsubscribe packets in the same order as topic table changes.
	// It is never held while waiting for the broker.
	sendMutex sync.Mutex
	mutex     sync.Mutex
	topics    map[string]*topicState
	nextID    uint64
}

type topicState struct {
	handlers map[uint64]MessageHandler

	// ready is closed once the broker answered the subscribe, err is set before that
	ready chan struct{}
	err   error
}

func (t *topicState) acknowledged() bool {
	select {
	case <-t.ready:
		return true
	default:
		return false
	}
}

func NewClient(mqttClient mqtt.Client) *Client {
	return &Client{
		SubscribeTimeout: defaultSubscribeTimeout,
		mqtt:             mqttClient,
		topics:           map[string]*topicState{},
	}
}

// Connect dials the broker, retrying with exponential backoff
func Connect(brokerURL string, clientID string) (*Client, error) {
	client := NewClient(nil)

	options := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(client.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", brokerURL).Msg("Lost connection to feed broker")
		})

	client.mqtt = mqtt.NewClient(options)

	connect := func() error {
		token := client.mqtt.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return errors.New("timed out connecting to feed broker")
		}

		return token.Error()
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("broker", brokerURL).Dur("retry", wait).Msg("Failed to connect to feed broker")
	}

	if err := backoff.RetryNotify(connect, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), notify); err != nil {
		return nil, err
	}

	log.Info().Str("broker", brokerURL).Str("clientid", clientID).Msg("Connected to feed broker")

	return client, nil
}

// Subscribe registers handler for topic, subscribing on the broker when no one else holds the topic.
// Waiting for the broker acknowledgement is bounded by ctx and SubscribeTimeout.
func (c *Client) Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error) {
	c.sendMutex.Lock()
	c.mutex.Lock()
	c.nextID++
	id := c.nextID

	state, exists := c.topics[topic]
	if !exists {
		state = &topicState{handlers: map[uint64]MessageHandler{}, ready: make(chan struct{})}
		c.topics[topic] = state
	}
	state.handlers[id] = handler
	c.mutex.Unlock()

	if !exists {
		token := c.mqtt.Subscribe(topic, c.QoS, c.dispatch(topic))
		go c.awaitSubscribe(topic, state, token)
	}
	c.sendMutex.Unlock()

	select {
	case <-state.ready:
		if state.err != nil {
			return nil, state.err
		}

		return &subscription{client: c, topic: topic, state: state, id: id}, nil
	case <-ctx.Done():
		if err := c.release(topic, state, id); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Failed to release abandoned feed subscription")
		}

		return nil, ctx.Err()
	}
}

func (c *Client) Close() {
	if c.mqtt != nil {
		c.mqtt.Disconnect(250)
	}
}

// awaitSubscribe resolves a pending topic once the broker answers or SubscribeTimeout passes.
// A failed topic, or one every subscriber gave up on while waiting, is dropped from the broker
// without waiting for the unsubscribe to complete.
func (c *Client) awaitSubscribe(topic string, state *topicState, token mqtt.Token) {
	err := c.waitToken(token)

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	c.mutex.Lock()
	state.err = err
	abandoned := len(state.handlers) == 0
	drop := err != nil || abandoned
	if drop && c.topics[topic] == state {
		delete(c.topics, topic)
	}
	close(state.ready)
	c.mutex.Unlock()

	if drop {
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Feed subscription failed")
		}
		c.mqtt.Unsubscribe(topic)
	}
}

func (c *Client) waitToken(token mqtt.Token) error {
	timeout := time.NewTimer(c.SubscribeTimeout)
	defer timeout.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timeout.C:
		return fmt.Errorf("no acknowledgement from feed broker after %s", c.SubscribeTimeout)
	}
}

func (c *Client) dispatch(filter string) mqtt.MessageHandler {
	return func(_ mqtt.Client, message mqtt.Message) {
		c.mutex.Lock()
		var handlers []MessageHandler
		if state, exists := c.topics[filter]; exists {
			handlers = make([]MessageHandler, 0, len(state.handlers))
			for _, handler := range state.handlers {
				handlers = append(handlers, handler)
			}
		}
		c.mutex.Unlock()

		for _, handler := range handlers {
			handler(message.Topic(), message.Payload())
		}
	}
}

// onConnect restores broker subscriptions after an automatic reconnect
func (c *Client) onConnect(client mqtt.Client) {
	c.mutex.Lock()
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	c.mutex.Unlock()

	for _, topic := range topics {
		token := client.Subscribe(topic, c.QoS, c.dispatch(topic))

		go func(topic string) {
			token.Wait()
			if err := token.Error(); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("Failed to restore feed subscription")
			}
		}(topic)
	}

	if len(topics) > 0 {
		log.Info().Int("topics", len(topics)).Msg("Restored feed subscriptions")
	}
}

// release removes one handler, the broker subscription goes with the last handler.
// Topics still waiting for their acknowledgement are cleaned up by awaitSubscribe instead.
func (c *Client) release(topic string, state *topicState, id uint64) error {
	c.sendMutex.Lock()

	c.mutex.Lock()
	delete(state.handlers, id)
	last := len(state.handlers) == 0 && state.acknowledged() && c.topics[topic] == state
	if last {
		delete(c.topics, topic)
	}
	c.mutex.Unlock()

	var token mqtt.Token
	if last {
		token = c.mqtt.Unsubscribe(topic)
	}
	c.sendMutex.Unlock()

	if token == nil {
		return nil
	}

	return c.waitToken(token)
}

type subscription struct {
	client *Client
	topic  string
	state  *topicState
	id     uint64

	once sync.Once
	err  error
}

// Unsubscribe is safe to call more than once, only the first call has any effect
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.client.release(s.topic, s.state, s.id)
	})

	return s.err
}
