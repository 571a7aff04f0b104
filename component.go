package techlife

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nlowe/techlife/discovery"
	"github.com/nlowe/techlife/hass"
	"github.com/nlowe/techlife/mqtt"
)

// ErrComponentAlreadySubscribed is the error returned by Component.Subscribe when it has already been subscribed. Call
// Component.Unsubscribe first.
var ErrComponentAlreadySubscribed = errors.New("component already subscribed")

// Component exposes a Home Assistant entity (here, a light) associated with a given device. It implements
// Discoverable by building the entity's entry in a Device Discovery payload.
type Component[TPlatform Platform] struct {
	Platform    TPlatform
	TopicPrefix string

	// The name of the entity. Leave empty to use only the device name, which Home Assistant does when the name is
	// null.
	Name string

	// Identifies to home assistant whether this entity is available
	Availability *mqtt.Value[hass.Availability]

	// An ID that uniquely identifies this entity. Required when used with device-based discovery.
	UniqueID string

	// MQTT Options Home Assistant should use for this entity's topics
	WriteOptions mqtt.WriteOptions

	mu               sync.Mutex
	subscribedTopics []string
}

// Subscribe registers MQTT Subscriptions for command fields in use by this Component using the provided
// mqtt.Subscriber. The subscriptions can be removed by calling Unsubscribe.
func (c *Component[TPlatform]) Subscribe(ctx context.Context, s mqtt.Subscriber) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subscribedTopics) != 0 {
		return ErrComponentAlreadySubscribed
	}

	subscriptions := c.Platform.Subscriptions(c.TopicPrefix)
	if len(subscriptions) == 0 {
		return nil
	}

	prefix := mqtt.TrimTopic(c.TopicPrefix) + mqtt.TopicSeparator
	err := s.Subscribe(ctx, mqtt.HandlerFunc(func(w mqtt.Writer, topic string, payload []byte) {
		rest, ok := strings.CutPrefix(topic, prefix)
		if !ok {
			return
		}

		c.Platform.ServeMQTT(w, rest, payload)
	}), subscriptions...)
	if err != nil {
		return err
	}

	c.subscribedTopics = make([]string, len(subscriptions))
	for i, subscription := range subscriptions {
		c.subscribedTopics[i] = subscription.Topic
	}

	return nil
}

// Unsubscribe removes MQTT Subscriptions for fields in use by this Component from the provided mqtt.Subscriber.
func (c *Component[TPlatform]) Unsubscribe(ctx context.Context, s mqtt.Subscriber) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subscribedTopics) == 0 {
		return nil
	}

	topics := c.subscribedTopics
	c.subscribedTopics = nil

	return s.Unsubscribe(ctx, topics...)
}

func (c *Component[TPlatform]) DiscoveryPayload() (discovery.Payload, error) {
	p := discovery.Payload{}

	var name any
	if c.Name != "" {
		name = c.Name
	}
	p[discovery.FieldName] = name

	discovery.PutMaybe(p, discovery.FieldQualityOfService, c.WriteOptions.QoS)
	discovery.PutMaybe(p, discovery.FieldRetain, c.WriteOptions.Retain)

	err := errors.Join(
		discovery.PutRequired("platform", p, discovery.FieldPlatform, c.Platform.PlatformName()),
		discovery.PutRequired("unique id", p, discovery.FieldUniqueID, c.UniqueID),
		discovery.PutRequiredValueTopic("availability", p, discovery.FieldAvailabilityTopic, c.Availability, c.TopicPrefix),
		c.Platform.PutDiscovery(p, c.TopicPrefix),
	)

	return p, err
}
