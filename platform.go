package techlife

import (
	"github.com/nlowe/techlife/discovery"
	"github.com/nlowe/techlife/mqtt"
)

// Platform is the interface implemented by every Home Assistant MQTT entity platform a Component can expose.
type Platform interface {
	mqtt.Handler

	// PutDiscovery adds the platform specific fields of a discovery payload to p, using the provided prefix for all
	// MQTT Topics.
	PutDiscovery(p discovery.Payload, prefix string) error

	// PlatformName returns the value for the `platform` field when configuring a component using this platform for MQTT
	// Device Discovery.
	PlatformName() string

	// Subscriptions returns the set of mqtt.Subscription values for configured command fields of this platform.
	Subscriptions(prefix string) []mqtt.Subscription
}

// Discoverable is anything that can be listed in the components of a device discovery payload.
type Discoverable interface {
	DiscoveryPayload() (discovery.Payload, error)
}
