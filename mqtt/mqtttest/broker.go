// Package mqtttest provides an in-memory MQTT broker for tests. It implements mqtt.Writer and mqtt.Subscriber, records
// every write and delivers messages synchronously to matching subscriptions.
package mqtttest

import (
	"context"
	"slices"
	"sync"

	"github.com/nlowe/techlife/mqtt"
)

// Message is a payload written to the Broker.
type Message struct {
	Topic   string
	Payload []byte
	Options mqtt.WriteOptions
}

type subscription struct {
	filter  string
	opts    mqtt.ReadOptions
	handler mqtt.Handler
}

// Broker is an in-memory stand-in for an MQTT broker connection. The zero value is not usable, use NewBroker.
type Broker struct {
	mu sync.Mutex

	subscriptions []subscription
	published     []Message
	retained      map[string]Message

	writeErr     error
	subscribeErr error
}

var _ mqtt.Writer = &Broker{}
var _ mqtt.Subscriber = &Broker{}

func NewBroker() *Broker {
	return &Broker{retained: map[string]Message{}}
}

// FailWrites makes every following WriteTopic call return err. Pass nil to succeed again.
func (b *Broker) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writeErr = err
}

// FailSubscribes makes every following Subscribe call return err. Pass nil to succeed again.
func (b *Broker) FailSubscribes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribeErr = err
}

func (b *Broker) WriteTopic(_ context.Context, topic string, options mqtt.WriteOptions, value []byte) error {
	b.mu.Lock()
	if b.writeErr != nil {
		err := b.writeErr
		b.mu.Unlock()
		return err
	}

	msg := Message{Topic: topic, Payload: slices.Clone(value), Options: options}
	b.published = append(b.published, msg)
	if options.Retain {
		b.retained[topic] = msg
	}
	b.mu.Unlock()

	b.dispatch(topic, msg.Payload)
	return nil
}

// Deliver routes a message to subscribers as if another client had published it. It is not recorded as a write.
func (b *Broker) Deliver(topic string, payload []byte) {
	b.dispatch(topic, payload)
}

func (b *Broker) dispatch(topic string, payload []byte) {
	b.mu.Lock()
	var handlers []mqtt.Handler
	for _, s := range b.subscriptions {
		if mqtt.MatchTopic(s.filter, topic) {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.Unlock()

	// Handlers run without the lock held so they may publish or subscribe.
	for _, h := range handlers {
		h.ServeMQTT(b, topic, payload)
	}
}

func (b *Broker) Subscribe(_ context.Context, handler mqtt.Handler, subscriptions ...mqtt.Subscription) error {
	b.mu.Lock()
	if b.subscribeErr != nil {
		err := b.subscribeErr
		b.mu.Unlock()
		return err
	}

	var retained []Message
	for _, s := range subscriptions {
		b.subscriptions = append(b.subscriptions, subscription{filter: s.Topic, opts: s.Options, handler: handler})

		if s.Options.RetainHandling == mqtt.RetainHandlingIgnoreRetained {
			continue
		}

		for topic, msg := range b.retained {
			if mqtt.MatchTopic(s.Topic, topic) {
				retained = append(retained, msg)
			}
		}
	}
	b.mu.Unlock()

	for _, msg := range retained {
		handler.ServeMQTT(b, msg.Topic, msg.Payload)
	}

	return nil
}

func (b *Broker) Unsubscribe(_ context.Context, topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscriptions = slices.DeleteFunc(b.subscriptions, func(s subscription) bool {
		return slices.Contains(topics, s.filter)
	})

	return nil
}

// Published returns every message written so far, in order.
func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.published)
}

// PublishedTo returns the messages written to topic, in order.
func (b *Broker) PublishedTo(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []Message
	for _, m := range b.published {
		if m.Topic == topic {
			result = append(result, m)
		}
	}

	return result
}

// Retained returns the retained message for topic, if any.
func (b *Broker) Retained(topic string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.retained[topic]
	return m, ok
}

// Subscribed reports whether any subscription uses exactly the provided filter.
func (b *Broker) Subscribed(filter string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.ContainsFunc(b.subscriptions, func(s subscription) bool {
		return s.filter == filter
	})
}
