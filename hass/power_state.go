package hass

import (
	"fmt"

	"github.com/nlowe/techlife/mqtt"
)

// PowerState represents generic on/off state for devices.
type PowerState string

var (
	PowerStateMarshaler mqtt.ValueMarshaler[PowerState] = func(v PowerState) ([]byte, error) {
		return mqtt.StringMarshaler(string(v))
	}

	// PowerStateUnmarshaler only accepts PowerStateOn and PowerStateOff.
	PowerStateUnmarshaler mqtt.ValueUnmarshaler[PowerState] = func(bytes []byte) (PowerState, error) {
		switch v := PowerState(bytes); v {
		case PowerStateOn, PowerStateOff:
			return v, nil
		default:
			return PowerStateUnknown, fmt.Errorf("invalid power state: %q", bytes)
		}
	}
)

const (
	PowerStateOn      PowerState = "ON"
	PowerStateOff     PowerState = "OFF"
	PowerStateUnknown PowerState = "None"
)

// PowerStateOf converts an on flag to PowerStateOn or PowerStateOff.
func PowerStateOf(on bool) PowerState {
	if on {
		return PowerStateOn
	}

	return PowerStateOff
}
