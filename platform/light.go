package platform

import (
	"errors"
	"log/slog"

	"github.com/nlowe/techlife/discovery"
	"github.com/nlowe/techlife/hass"
	tllog "github.com/nlowe/techlife/log"
	"github.com/nlowe/techlife/mqtt"
)

// LightOnCommandType configures how Home Assistant sends style and power commands via MQTT for this component.
type LightOnCommandType string

const (
	// LightOnCommandTypeLast instructs Home Assistant to send any style (brightness) topics first and then a
	// payload_on to the Light.Command. This is the default behavior.
	LightOnCommandTypeLast    LightOnCommandType = "last"
	DefaultLightOnCommandType                    = LightOnCommandTypeLast
	// LightOnCommandTypeFirst instructs Home Assistant to send the payload_on and then any style topics.
	LightOnCommandTypeFirst LightOnCommandType = "first"
	// LightOnCommandTypeBrightness instructs Home Assistant to only send brightness commands instead of the payload_on
	// to turn the light on.
	LightOnCommandTypeBrightness LightOnCommandType = "brightness"
)

// Light is a techlife.Platform that implements the light.mqtt integration (default schema) for a dimmable,
// single-channel light.
//
// See https://www.home-assistant.io/integrations/light.mqtt/
type Light struct {
	// Defines when on the payload_on is sent.
	OnCommandType LightOnCommandType

	// The current state of the Light
	State *mqtt.Value[hass.PowerState]
	// Home Assistant will write commands for this entity to this value
	Command *mqtt.RemoteValue[hass.PowerState]

	// The color modes supported by this light
	SupportedColorModes []hass.ColorMode

	// The current brightness of the light
	Brightness *mqtt.Value[uint]
	// Home Assistant will write desired brightness to this value
	BrightnessCommand *mqtt.RemoteValue[uint]
}

var lightLog = tllog.ForComponent("platform.light")

func (l *Light) PlatformName() string {
	return "light"
}

func (l *Light) Subscriptions(prefix string) []mqtt.Subscription {
	var result []mqtt.Subscription

	result = l.Command.AppendSubscribeOptions(result, prefix)
	result = l.BrightnessCommand.AppendSubscribeOptions(result, prefix)

	return result
}

// ServeMQTT routes the payload received on the specified topic suffix to the matching command value.
func (l *Light) ServeMQTT(w mqtt.Writer, topic string, payload []byte) {
	switch topic {
	case l.Command.FullyQualifiedTopic(""):
		l.Command.ServeMQTT(w, topic, payload)
	case l.BrightnessCommand.FullyQualifiedTopic(""):
		l.BrightnessCommand.ServeMQTT(w, topic, payload)
	default:
		lightLog.With(slog.String("topic", topic)).Debug("Ignoring payload for unknown light topic")
	}
}

func (l *Light) PutDiscovery(p discovery.Payload, prefix string) error {
	discovery.PutIfNot(DefaultLightOnCommandType, p, discovery.FieldOnCommandType, l.OnCommandType)
	discovery.PutMaybeValueTopic(p, discovery.FieldStateTopic, l.State, prefix)
	discovery.PutMaybeSlice(p, discovery.FieldSupportedColorModes, l.SupportedColorModes)

	return errors.Join(
		discovery.PutRequiredRemoteValueTopic("command", p, discovery.FieldCommandTopic, l.Command, prefix),
		discovery.PutStateAndCommandTopics(
			"brightness", p,
			discovery.FieldBrightnessStateTopic, l.Brightness,
			discovery.FieldBrightnessCommandTopic, l.BrightnessCommand,
			prefix,
		),
	)
}
