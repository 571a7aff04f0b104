package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nlowe/techlife"
	"github.com/nlowe/techlife/hass"
	tllog "github.com/nlowe/techlife/log"
	"github.com/nlowe/techlife/mqtt"
	"github.com/nlowe/techlife/platform"
	"github.com/nlowe/techlife/strip"
)

// Light topics below the topic prefix. Every light shares the bridge's availability topic, the rest are nested under
// the strip ID.
const (
	AvailabilityTopic      = "availability"
	StateTopic             = "state"
	CommandTopic           = "set"
	BrightnessTopic        = "brightness"
	BrightnessCommandTopic = "brightness/set"
)

// AvailabilityTopicFor is the availability topic shared by every light under topicPrefix. It is also the topic of the
// bridge's MQTT will message.
func AvailabilityTopicFor(topicPrefix string) string {
	return mqtt.JoinTopic(topicPrefix, AvailabilityTopic)
}

// Home Assistant publishes light commands at QoS 1.
var commandReadOptions = mqtt.ReadOptions{QoS: mqtt.QOSAtLeastOnce}

type command struct {
	name  string
	apply func(ctx context.Context) error
}

type device struct {
	id         strip.ID
	w          mqtt.Writer
	controller *strip.Controller
	light      *techlife.Component[*platform.Light]
	meta       *techlife.Device

	commands chan command
	watches  [2]int

	log *slog.Logger
}

func (h *Host) newDevice(id strip.ID) *device {
	info := id.Info()

	d := &device{
		id: id,
		w:  h.w,
		light: &techlife.Component[*platform.Light]{
			UniqueID:    id.UniqueID(),
			TopicPrefix: h.opts.TopicPrefix,

			WriteOptions: mqtt.WriteOptions{QoS: mqtt.QOSAtLeastOnce},

			Availability: mqtt.NewValueWithOptions(AvailabilityTopic, hass.AvailabilityMarshaler, mqtt.WriteOptions{Retain: true}),

			Platform: &platform.Light{
				// ON precedes the brightness command so the brightness frame is the last one the strip sees.
				OnCommandType: platform.LightOnCommandTypeFirst,

				State:   mqtt.NewValueWithOptions(mqtt.JoinTopic(string(id), StateTopic), hass.PowerStateMarshaler, mqtt.WriteOptions{Retain: true}),
				Command: mqtt.NewRemoteValueWithOptions(mqtt.JoinTopic(string(id), CommandTopic), hass.PowerStateUnmarshaler, commandReadOptions),

				SupportedColorModes: []hass.ColorMode{hass.ColorModeBrightness},

				Brightness:        mqtt.NewValueWithOptions(mqtt.JoinTopic(string(id), BrightnessTopic), mqtt.UintMarshaler, mqtt.WriteOptions{Retain: true}),
				BrightnessCommand: mqtt.NewRemoteValueWithOptions(mqtt.JoinTopic(string(id), BrightnessCommandTopic), mqtt.UintUnmarshaler, commandReadOptions),
			},
		},
		meta: &techlife.Device{
			Name:         info.Name,
			Manufacturer: info.Manufacturer,
			Model:        info.Model,
			Identifiers:  []string{id.UniqueID()},
			Origin:       h.opts.Origin,
		},

		commands: make(chan command, h.opts.QueueSize),

		log: h.log.With(slog.String("device", string(id))),
	}

	d.controller = strip.New(id, h.w, strip.WithNotifier(d), strip.WithStateParser(h.opts.StateParser))

	d.watches[0] = d.light.Platform.Command.Watch(func(s hass.PowerState) {
		switch s {
		case hass.PowerStateOn:
			d.enqueue(command{name: "turn_on", apply: d.controller.TurnOn})
		case hass.PowerStateOff:
			d.enqueue(command{name: "turn_off", apply: d.controller.TurnOff})
		}
	})
	d.watches[1] = d.light.Platform.BrightnessCommand.Watch(func(level uint) {
		d.enqueue(command{name: "turn_on_with_brightness", apply: func(ctx context.Context) error {
			return d.controller.TurnOnWithBrightness(ctx, int(min(level, uint(255))))
		}})
	})

	return d
}

// enqueue is called from the transport's delivery goroutine so it never blocks.
func (d *device) enqueue(c command) {
	select {
	case d.commands <- c:
		d.log.With(slog.String("command", c.name)).Debug("Home Assistant sent light command")
	default:
		d.log.With(slog.String("command", c.name)).Warn("Command queue full, dropping command")
	}
}

func (d *device) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-d.commands:
			if err := c.apply(ctx); err != nil {
				d.log.With(slog.String("command", c.name), tllog.Error(err)).Error("Failed to apply command")
			}
		}
	}
}

// StateChanged implements strip.Notifier by publishing the strip's state to the light's state topics.
func (d *device) StateChanged(ctx context.Context, _ strip.ID, s strip.State) error {
	prefix := d.light.TopicPrefix

	return errors.Join(
		mqtt.Error(d.light.Platform.State.Write(ctx, d.w, prefix, hass.PowerStateOf(s.On))),
		mqtt.Error(d.light.Platform.Brightness.Write(ctx, d.w, prefix, uint(s.Brightness))),
	)
}

func (d *device) subscribe(ctx context.Context, s mqtt.Subscriber) error {
	if err := d.controller.Subscribe(ctx, s); err != nil {
		return err
	}

	if err := d.light.Subscribe(ctx, s); err != nil {
		return errors.Join(fmt.Errorf("subscribe light: %w", err), d.controller.Close(ctx))
	}

	return nil
}

func (d *device) unsubscribe(ctx context.Context, s mqtt.Subscriber) error {
	return errors.Join(
		d.light.Unsubscribe(ctx, s),
		d.controller.Close(ctx),
	)
}

// announce publishes the discovery payload, then availability and the current state.
func (d *device) announce(ctx context.Context, w mqtt.Writer, discoveryPrefix string) error {
	components := map[string]techlife.Discoverable{d.light.UniqueID: d.light}
	if err := d.meta.Configure(ctx, w, discoveryPrefix, components); err != nil {
		return err
	}

	return errors.Join(
		mqtt.Error(d.light.Availability.Write(ctx, w, d.light.TopicPrefix, hass.Available)),
		d.StateChanged(ctx, d.id, d.controller.State()),
	)
}

func (d *device) close(ctx context.Context, w mqtt.Writer, s mqtt.Subscriber) error {
	d.light.Platform.Command.Unwatch(d.watches[0])
	d.light.Platform.BrightnessCommand.Unwatch(d.watches[1])

	return errors.Join(
		mqtt.Error(d.light.Availability.Write(ctx, w, d.light.TopicPrefix, hass.Unavailable)),
		d.unsubscribe(ctx, s),
	)
}
