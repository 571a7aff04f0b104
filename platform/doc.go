// Package platform contains implementations of Home Assistant MQTT platforms used by techlife. Each implementation
// satisfies the techlife.Platform interface.
package platform
