package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/garagedoor2mqtt/internal/cover"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

type published struct {
	Topic    string
	Retained bool
	Payload  string
}

// fakeClient records publishes and keeps subscription handlers so tests
// can deliver messages.
type fakeClient struct {
	mu sync.Mutex

	Published      []published
	Subscriptions  map[string]paho.MessageHandler
	Unsubscribed   []string
	SubscribeError error
}

func newFakeClient() *fakeClient {
	return &fakeClient{Subscriptions: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s string
	switch p := payload.(type) {
	case []byte:
		s = string(p)
	default:
		s = fmt.Sprint(p)
	}
	c.Published = append(c.Published, published{topic, retained, s})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SubscribeError != nil {
		return &fakeToken{err: c.SubscribeError}
	}
	c.Subscriptions[topic] = callback
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		delete(c.Subscriptions, topic)
	}
	c.Unsubscribed = append(c.Unsubscribed, topics...)
	return &fakeToken{}
}

func (c *fakeClient) deliver(topic string, payload string, retained bool) {
	c.mu.Lock()
	h := c.Subscriptions[topic]
	c.mu.Unlock()

	if h != nil {
		h(nil, &fakeMessage{topic: topic, payload: []byte(payload), retained: retained})
	}
}

func (c *fakeClient) lastPublished(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.Published) - 1; i >= 0; i-- {
		if c.Published[i].Topic == topic {
			return c.Published[i], true
		}
	}
	return published{}, false
}

type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return m.retained }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeCover records the commands it receives.
type fakeCover struct {
	name     string
	calls    []string
	handlers []cover.UpdateHandler
}

func (c *fakeCover) Name() string                   { return c.name }
func (c *fakeCover) OnUpdate(h cover.UpdateHandler) { c.handlers = append(c.handlers, h) }

func (c *fakeCover) Open(context.Context) error {
	c.calls = append(c.calls, "open")
	return nil
}

func (c *fakeCover) Close(context.Context) error {
	c.calls = append(c.calls, "close")
	return nil
}

func (c *fakeCover) Stop(context.Context) error {
	c.calls = append(c.calls, "stop")
	return nil
}

func (c *fakeCover) Toggle(context.Context) error {
	c.calls = append(c.calls, "toggle")
	return nil
}

func (c *fakeCover) SetPosition(_ context.Context, position float64) error {
	c.calls = append(c.calls, fmt.Sprintf("set %.2f", position))
	return nil
}

func (c *fakeCover) ResetPosition(_ context.Context, position float64) error {
	c.calls = append(c.calls, fmt.Sprintf("reset %.2f", position))
	return nil
}

func (c *fakeCover) update(state cover.State, position float64) {
	for _, h := range c.handlers {
		h(state, position)
	}
}
