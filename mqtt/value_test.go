package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writeFunc func(ctx context.Context, topic string, options WriteOptions, value []byte) error

func (f writeFunc) WriteTopic(ctx context.Context, topic string, options WriteOptions, value []byte) error {
	return f(ctx, topic, options, value)
}

func TestValueWrite(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		var gotTopic string
		var gotPayload []byte
		var gotOpts WriteOptions
		w := writeFunc(func(_ context.Context, topic string, options WriteOptions, value []byte) error {
			gotTopic, gotPayload, gotOpts = topic, value, options
			return nil
		})

		sut := NewValueWithOptions("brightness", UintMarshaler, WriteOptions{Retain: true})
		_, ok := sut.Get()
		require.False(t, ok)

		v, err := sut.Write(t.Context(), w, "techlife/AA", 128)
		require.NoError(t, err)
		assert.EqualValues(t, 128, v)
		assert.Equal(t, "techlife/AA/brightness", gotTopic)
		assert.Equal(t, []byte("128"), gotPayload)
		assert.True(t, gotOpts.Retain)

		v, ok = sut.Get()
		assert.True(t, ok)
		assert.EqualValues(t, 128, v)
	})

	t.Run("Write Fails", func(t *testing.T) {
		boom := errors.New("boom")
		w := writeFunc(func(context.Context, string, WriteOptions, []byte) error { return boom })

		sut := NewValue("brightness", UintMarshaler)
		_, err := sut.Write(t.Context(), w, "techlife/AA", 128)
		require.ErrorIs(t, err, boom)

		_, ok := sut.Get()
		assert.False(t, ok, "failed writes must not update the held value")
	})

	t.Run("No Marshaler", func(t *testing.T) {
		sut := NewValue[uint]("brightness", nil)
		_, err := sut.Write(t.Context(), nil, "", 1)
		require.ErrorIs(t, err, ErrNoMarshaler)
	})
}

func TestRemoteValue(t *testing.T) {
	sut := NewRemoteValue("set", StringUnmarshaler)

	var seen []string
	id := sut.Watch(func(s string) {
		// Watchers may read the value they are notified about.
		v, ok := sut.Get()
		require.True(t, ok)
		seen = append(seen, v)
	})

	sut.ServeMQTT(nil, "other", []byte("ignored"))
	sut.ServeMQTT(nil, "set", []byte("ON"))
	sut.Unwatch(id)
	sut.ServeMQTT(nil, "set", []byte("OFF"))

	assert.Equal(t, []string{"ON"}, seen)

	v, ok := sut.Get()
	assert.True(t, ok)
	assert.Equal(t, "OFF", v)
}

func TestRemoteValueUnmarshalError(t *testing.T) {
	sut := NewRemoteValue("brightness/set", UintUnmarshaler)

	called := false
	sut.Watch(func(uint) { called = true })
	sut.ServeMQTT(nil, "brightness/set", []byte("bright"))

	assert.False(t, called)
	_, ok := sut.Get()
	assert.False(t, ok)
}

func TestUintUnmarshaler(t *testing.T) {
	v, err := UintUnmarshaler([]byte("127.5"))
	require.NoError(t, err)
	assert.EqualValues(t, 127, v)

	v, err = UintUnmarshaler([]byte("255"))
	require.NoError(t, err)
	assert.EqualValues(t, 255, v)
}

func TestAppendSubscribeOptions(t *testing.T) {
	var nilValue *RemoteValue[string]
	require.Empty(t, nilValue.AppendSubscribeOptions(nil, "techlife"))

	got := NewRemoteValueWithOptions("set", StringUnmarshaler, ReadOptions{QoS: QOSAtLeastOnce}).
		AppendSubscribeOptions(nil, "techlife/AA")
	require.Equal(t, []Subscription{{Topic: "techlife/AA/set", Options: ReadOptions{QoS: QOSAtLeastOnce}}}, got)
}
