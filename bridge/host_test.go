package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/techlife/mqtt"
	"github.com/nlowe/techlife/mqtt/mqtttest"
	"github.com/nlowe/techlife/protocol"
	"github.com/nlowe/techlife/strip"
)

func payloadOf(t *testing.T, b *mqtttest.Broker, topic string) string {
	t.Helper()

	msg, ok := b.Retained(topic)
	require.True(t, ok, "expected a retained message on %s", topic)
	return string(msg.Payload)
}

func retainedPayload(b *mqtttest.Broker, topic string) string {
	msg, _ := b.Retained(topic)
	return string(msg.Payload)
}

func TestHostRegister(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New(b, b, Options{})
	t.Cleanup(func() { _ = sut.Close(context.Background()) })

	c, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)
	require.NotNil(t, c)

	again, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)
	assert.Same(t, c, again)

	got, ok := sut.Controller("AA")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, []strip.ID{"AA"}, sut.IDs())

	assert.True(t, b.Subscribed("dev_pub_AA"))
	assert.True(t, b.Subscribed("techlife/AA/set"))
	assert.True(t, b.Subscribed("techlife/AA/brightness/set"))

	assert.Equal(t, "online", payloadOf(t, b, "techlife/availability"))
	assert.Equal(t, "OFF", payloadOf(t, b, "techlife/AA/state"))
	assert.Equal(t, "255", payloadOf(t, b, "techlife/AA/brightness"))
	assert.Len(t, b.PublishedTo("homeassistant/device/techlife_aa/config"), 1, "discovery is published once")

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(payloadOf(t, b, "homeassistant/device/techlife_aa/config")), &cfg))

	assert.Equal(t, map[string]any{
		"name": "TechLife Strip AA",
		"mf":   "TechLife",
		"mdl":  "Pro LED Strip",
		"ids":  []any{"techlife_aa"},
	}, cfg["dev"])

	light := cfg["cmps"].(map[string]any)["techlife_aa"].(map[string]any)
	assert.Equal(t, "light", light["p"])
	assert.Equal(t, "techlife_aa", light["uniq_id"])
	assert.Equal(t, []any{"brightness"}, light["sup_clrm"])
	assert.Equal(t, "techlife/AA/set", light["cmd_t"])
	assert.Equal(t, "techlife/AA/brightness/set", light["bri_cmd_t"])
	assert.Equal(t, "first", light["on_cmd_type"])
	assert.EqualValues(t, 1, light["qos"])
}

func TestHostRegisterDistinctDevices(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New(b, b, Options{TopicPrefix: "lights", DiscoveryPrefix: "ha"})
	t.Cleanup(func() { _ = sut.Close(context.Background()) })

	_, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)
	_, err = sut.Register(t.Context(), "BB")
	require.NoError(t, err)

	assert.Equal(t, []strip.ID{"AA", "BB"}, sut.IDs())
	assert.Len(t, b.PublishedTo("ha/device/techlife_aa/config"), 1)
	assert.Len(t, b.PublishedTo("ha/device/techlife_bb/config"), 1)
	assert.True(t, b.Subscribed("lights/AA/set"))
	assert.True(t, b.Subscribed("lights/BB/set"))
}

func TestHostRegisterFailure(t *testing.T) {
	b := mqtttest.NewBroker()
	boom := errors.New("boom")
	b.FailWrites(boom)

	sut := New(b, b, Options{})
	t.Cleanup(func() { _ = sut.Close(context.Background()) })

	_, err := sut.Register(t.Context(), "AA")
	require.ErrorIs(t, err, boom)

	assert.Empty(t, sut.IDs())
	assert.False(t, b.Subscribed("dev_pub_AA"), "subscriptions are removed when registration fails")
	assert.False(t, b.Subscribed("techlife/AA/set"))
}

func TestHostAppliesHomeAssistantCommands(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New(b, b, Options{})
	t.Cleanup(func() { _ = sut.Close(context.Background()) })

	c, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)

	b.Deliver("techlife/AA/brightness/set", []byte("128"))
	require.Eventually(t, func() bool {
		return c.IsOn() && c.Brightness() == 128
	}, time.Second, 10*time.Millisecond)

	b.Deliver("techlife/AA/set", []byte("OFF"))
	require.Eventually(t, func() bool {
		return retainedPayload(b, "techlife/AA/state") == "OFF"
	}, time.Second, 10*time.Millisecond)
	assert.False(t, c.IsOn())

	frames := b.PublishedTo("dev_sub_AA")
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.EncodeBrightness(128).Bytes(), frames[0].Payload)
	assert.Equal(t, protocol.EncodeOff().Bytes(), frames[1].Payload)

	assert.Equal(t, "128", payloadOf(t, b, "techlife/AA/brightness"))
}

func TestHostTurnOnWithBrightnessEndsWithBrightnessFrame(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New(b, b, Options{})
	t.Cleanup(func() { _ = sut.Close(context.Background()) })

	c, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)

	// light.turn_on(brightness=128) with on_cmd_type "first"
	b.Deliver("techlife/AA/set", []byte("ON"))
	b.Deliver("techlife/AA/brightness/set", []byte("128"))

	require.Eventually(t, func() bool {
		return len(b.PublishedTo("dev_sub_AA")) == 2
	}, time.Second, 10*time.Millisecond)

	frames := b.PublishedTo("dev_sub_AA")
	assert.Equal(t, protocol.EncodeOn().Bytes(), frames[0].Payload)
	assert.Equal(t, protocol.EncodeBrightness(128).Bytes(), frames[1].Payload)

	assert.True(t, c.IsOn())
	assert.Equal(t, 128, c.Brightness())
}

func TestHostIgnoresInvalidCommands(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New(b, b, Options{})
	t.Cleanup(func() { _ = sut.Close(context.Background()) })

	c, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)

	b.Deliver("techlife/AA/set", []byte("TOGGLE"))
	b.Deliver("techlife/AA/brightness/set", []byte("bright"))
	b.Deliver("techlife/AA/set", []byte("ON"))

	require.Eventually(t, c.IsOn, time.Second, 10*time.Millisecond)
	assert.Len(t, b.PublishedTo("dev_sub_AA"), 1)
}

func TestHostRediscoverOnHomeAssistantBirth(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New(b, b, Options{})
	t.Cleanup(func() { _ = sut.Close(context.Background()) })

	require.NoError(t, sut.Start(t.Context()))
	require.ErrorIs(t, sut.Start(t.Context()), ErrAlreadyStarted)

	_, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)

	b.Deliver("homeassistant/status", []byte("offline"))
	b.Deliver("homeassistant/status", []byte("online"))

	require.Eventually(t, func() bool {
		return len(b.PublishedTo("homeassistant/device/techlife_aa/config")) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHostClose(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New(b, b, Options{})

	require.NoError(t, sut.Start(t.Context()))
	_, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)

	require.NoError(t, sut.Close(t.Context()))
	require.NoError(t, sut.Close(t.Context()))

	assert.Equal(t, "offline", payloadOf(t, b, "techlife/availability"))
	assert.False(t, b.Subscribed("dev_pub_AA"))
	assert.False(t, b.Subscribed("techlife/AA/set"))
	assert.False(t, b.Subscribed("homeassistant/status"))

	_, err = sut.Register(t.Context(), "BB")
	require.ErrorIs(t, err, ErrClosed)

	// a status message already routed before the unsubscribe completed
	sut.hass.ServeMQTT(b, sut.hass.FullyQualifiedTopic(""), []byte("online"))
	sut.workers.Wait()
	assert.Len(t, b.PublishedTo("homeassistant/device/techlife_aa/config"), 1)
}

func TestHostStateParserUpdatesHomeAssistant(t *testing.T) {
	on := true
	b := mqtttest.NewBroker()
	sut := New(b, b, Options{StateParser: protocol.StateParserFunc(func([]byte) (protocol.StateReport, bool) {
		return protocol.StateReport{On: &on}, true
	})})
	t.Cleanup(func() { _ = sut.Close(context.Background()) })

	_, err := sut.Register(t.Context(), "AA")
	require.NoError(t, err)

	require.NoError(t, b.WriteTopic(t.Context(), "dev_pub_AA", mqtt.WriteOptions{}, []byte{0x01}))
	require.Eventually(t, func() bool {
		return retainedPayload(b, "techlife/AA/state") == "ON"
	}, time.Second, 10*time.Millisecond)
}
