package techlife

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nlowe/techlife/discovery"
	"github.com/nlowe/techlife/mqtt"
)

// ErrInvalidDevice is the error returned by Device.Configure and Device.Valid if it is not properly configured.
var ErrInvalidDevice = errors.New("device must have at least one identifying value in 'identifiers'")

// Device represents an MQTT-based Home Assistant device. In the Home Assistant MQTT Integration, a Device is a
// collection of "Components" (entities). This relationship is only constructed when building the discovery payload.
//
// See https://www.home-assistant.io/integrations/mqtt/#device-discovery-payload
type Device struct {
	// The ID to use for discovery. If empty, an ID is calculated from other fields.
	DiscoveryID string `json:"-"`

	// The name of the device.
	Name string `json:"name,omitempty"`

	// The manufacturer of the device.
	Manufacturer string `json:"mf,omitempty"`

	// The model of the device.
	Model string `json:"mdl,omitempty"`

	// A list of IDs that uniquely identify the device.
	Identifiers []string `json:"ids,omitempty"`

	// Information about the software publishing the device. If omitted, DefaultOrigin is used.
	Origin *Origin `json:"-"`
}

// ID calculates an identifier for this device. If the Device.DiscoveryID is specified, that value will be used.
// Otherwise all Device.Identifiers are sanitized and joined with discovery.IDSep.
func (d *Device) ID() string {
	if d.DiscoveryID != "" {
		return d.DiscoveryID
	}

	ids := make([]string, len(d.Identifiers))
	for i, ident := range d.Identifiers {
		ids[i] = discovery.IDSanitizer.Replace(ident)
	}

	return strings.Join(ids, discovery.IDSep)
}

// Valid checks if this Device is configured appropriately. Home Assistant requires at least one value be configured for
// Device.Identifiers.
func (d *Device) Valid() error {
	if len(d.Identifiers) == 0 {
		return ErrInvalidDevice
	}

	return nil
}

// DiscoveryPayload builds the full device discovery payload for this device and the provided components, keyed by
// the components' unique IDs.
func (d *Device) DiscoveryPayload(components map[string]Discoverable) ([]byte, error) {
	if err := d.Valid(); err != nil {
		return nil, err
	}

	cmps := make(map[string]discovery.Payload, len(components))
	var err error
	for id, c := range components {
		p, cErr := c.DiscoveryPayload()
		if cErr != nil {
			err = errors.Join(err, fmt.Errorf("component %s: %w", id, cErr))
			continue
		}

		cmps[id] = p
	}

	if err != nil {
		return nil, err
	}

	return json.Marshal(discovery.Payload{
		discovery.FieldDevice:     d,
		discovery.FieldOrigin:     cmp.Or(d.Origin, &DefaultOrigin),
		discovery.FieldComponents: cmps,
	})
}

// Configure publishes the device discovery payload for this device and the provided components as a retained message
// under discoveryPrefix.
//
// The device must pass validation performed by Device.Valid.
func (d *Device) Configure(ctx context.Context, w mqtt.Writer, discoveryPrefix string, components map[string]Discoverable) error {
	payload, err := d.DiscoveryPayload(components)
	if err != nil {
		return fmt.Errorf("configure: build discovery payload: %w", err)
	}

	return w.WriteTopic(ctx, discovery.DeviceConfigTopic(discoveryPrefix, d.ID()), mqtt.WriteOptions{Retain: true}, payload)
}
