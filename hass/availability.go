// Package hass holds the payload values Home Assistant uses on MQTT state, command and availability topics.
package hass

import (
	"github.com/nlowe/techlife/mqtt"
)

// Availability exposes whether Home Assistant should consider a device or entity as "available" (aka it is online).
type Availability string

var (
	AvailabilityMarshaler mqtt.ValueMarshaler[Availability] = func(v Availability) ([]byte, error) {
		return mqtt.StringMarshaler(string(v))
	}
	AvailabilityUnmarshaler mqtt.ValueUnmarshaler[Availability] = func(bytes []byte) (Availability, error) {
		v, err := mqtt.StringUnmarshaler(bytes)
		return Availability(v), err
	}
)

const (
	// Available is the Availability value for online/available devices.
	Available Availability = "online"
	// Unavailable is the Availability value for offline/unavailable devices.
	Unavailable Availability = "offline"
)
